package contract

// RepoIndex is the contract for the repo-index store
// (<root>/.pf/repo_index.db). Flush priorities encode the deterministic
// flush order required by §4.2/§5: CFG blocks before statements/edges,
// symbols before ref joins, assignments before assignment_sources, and so
// on. Junction tables always flush strictly after the parent they
// reference.
var RepoIndex = &Contract{Tables: []Table{
	filesTable,
	symbolsTable,
	refsTable,
	assignmentsTable,
	assignmentSourcesTable,
	functionCallArgsTable,
	functionReturnsTable,
	functionReturnSourcesTable,
	cfgBlocksTable,
	cfgEdgesTable,
	cfgBlockStatementsTable,
	apiEndpointsTable,
	apiEndpointControlsTable,
	ormModelsTable,
	ormQueriesTable,
	middlewareChainsTable,
	validationFrameworkUsageTable,
	reactComponentsTable,
	djangoArtifactsTable,
	terraformResourcesTable,
	terraformVariablesTable,
	terraformOutputsTable,
	terraformFindingsTable,
	jwtPatternsTable,
	envVarUsageTable,
	symbolsJSXTable,
	refsJSXTable,
	assignmentsJSXTable,
	assignmentSourcesJSXTable,
	functionCallArgsJSXTable,
	findingsConsolidatedTable,
	resolvedFlowAuditTable,
	taintFlowsTable,
}}

var filesTable = Table{
	Name: "files", FlushPriority: 0,
	Columns: []Column{
		{Name: "path", Type: TypeText, NotNull: true, PrimaryKey: true},
		{Name: "language", Type: TypeText, NotNull: true},
		{Name: "size_bytes", Type: TypeInteger, NotNull: true, Default: "0"},
		{Name: "content_hash", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "parse_status", Type: TypeText, NotNull: true, Default: "'ok'"},
	},
	Indexes: []Index{{Name: "idx_files_language", Columns: []string{"language"}}},
}

var symbolsTable = Table{
	Name: "symbols", FlushPriority: 10,
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncr: true},
		{Name: "path", Type: TypeText, NotNull: true},
		{Name: "name", Type: TypeText, NotNull: true},
		{Name: "type", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "end_line", Type: TypeInteger, NotNull: true},
		{Name: "type_annotation", Type: TypeText},
		{Name: "is_typed", Type: TypeInteger, NotNull: true, Default: "0"},
	},
	Indexes: []Index{
		{Name: "idx_symbols_path_name_line", Columns: []string{"path", "name", "line"}, Unique: true},
		{Name: "idx_symbols_path_span", Columns: []string{"path", "line", "end_line"}},
	},
	ForeignKeys: []ForeignKeyIntent{{Column: "path", ReferencesTable: "files", ReferencesColumn: "path"}},
}

var refsTable = Table{
	Name: "refs", FlushPriority: 20,
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncr: true},
		{Name: "src", Type: TypeText, NotNull: true},
		{Name: "kind", Type: TypeText, NotNull: true},
		{Name: "value", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
	},
	Indexes: []Index{
		{Name: "idx_refs_src", Columns: []string{"src"}},
		{Name: "idx_refs_value", Columns: []string{"value"}},
	},
	ForeignKeys: []ForeignKeyIntent{{Column: "src", ReferencesTable: "files", ReferencesColumn: "path"}},
}

var assignmentsTable = Table{
	Name: "assignments", FlushPriority: 30,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "in_function", Type: TypeText, NotNull: true},
		{Name: "target_var", Type: TypeText, NotNull: true},
		{Name: "source_expr", Type: TypeText, NotNull: true, Default: "''"},
	},
	Indexes: []Index{
		{Name: "idx_assignments_loc", Columns: []string{"file", "line", "target_var"}},
	},
}

var assignmentSourcesTable = Table{
	Name: "assignment_sources", FlushPriority: 31,
	Columns: []Column{
		{Name: "assignment_file", Type: TypeText, NotNull: true},
		{Name: "assignment_line", Type: TypeInteger, NotNull: true},
		{Name: "assignment_target", Type: TypeText, NotNull: true},
		{Name: "source_var_name", Type: TypeText, NotNull: true},
	},
	Indexes: []Index{
		{Name: "idx_assignment_sources_parent", Columns: []string{"assignment_file", "assignment_line", "assignment_target"}},
	},
	ForeignKeys: []ForeignKeyIntent{{Column: "assignment_file", ReferencesTable: "assignments", ReferencesColumn: "file"}},
}

var functionCallArgsTable = Table{
	Name: "function_call_args", FlushPriority: 40,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "caller_function", Type: TypeText, NotNull: true},
		{Name: "callee_function", Type: TypeText, NotNull: true},
		{Name: "argument_index", Type: TypeInteger, NotNull: true},
		{Name: "argument_expr", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "param_name", Type: TypeText},
		{Name: "callee_file_path", Type: TypeText},
	},
	Indexes: []Index{
		{Name: "idx_function_call_args_caller", Columns: []string{"file", "caller_function"}},
		{Name: "idx_function_call_args_callee_path", Columns: []string{"callee_file_path"}},
	},
}

var functionReturnsTable = Table{
	Name: "function_returns", FlushPriority: 50,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "function", Type: TypeText, NotNull: true},
		{Name: "return_expr", Type: TypeText, NotNull: true, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_function_returns_fn", Columns: []string{"file", "function"}}},
}

var functionReturnSourcesTable = Table{
	Name: "function_return_sources", FlushPriority: 51,
	Columns: []Column{
		{Name: "return_file", Type: TypeText, NotNull: true},
		{Name: "return_line", Type: TypeInteger, NotNull: true},
		{Name: "return_function", Type: TypeText, NotNull: true},
		{Name: "return_var_name", Type: TypeText, NotNull: true},
	},
	Indexes: []Index{{Name: "idx_function_return_sources_parent", Columns: []string{"return_file", "return_line", "return_function"}}},
	ForeignKeys: []ForeignKeyIntent{{Column: "return_file", ReferencesTable: "function_returns", ReferencesColumn: "file"}},
}

// cfg_blocks must flush strictly before cfg_edges and cfg_block_statements
// because the batched storage engine hands out temporary negative block
// IDs at add-time (§4.2) and rewrites them to real autoincrement IDs here.
var cfgBlocksTable = Table{
	Name: "cfg_blocks", FlushPriority: 60,
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncr: true},
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "function_name", Type: TypeText, NotNull: true},
		{Name: "block_type", Type: TypeText, NotNull: true},
		{Name: "start_line", Type: TypeInteger, NotNull: true},
		{Name: "end_line", Type: TypeInteger, NotNull: true},
	},
	Indexes: []Index{{Name: "idx_cfg_blocks_fn", Columns: []string{"file", "function_name"}}},
}

var cfgEdgesTable = Table{
	Name: "cfg_edges", FlushPriority: 61,
	Columns: []Column{
		{Name: "source_block_id", Type: TypeInteger, NotNull: true},
		{Name: "target_block_id", Type: TypeInteger, NotNull: true},
		{Name: "edge_type", Type: TypeText, NotNull: true},
	},
	Indexes: []Index{{Name: "idx_cfg_edges_source", Columns: []string{"source_block_id"}}},
	ForeignKeys: []ForeignKeyIntent{
		{Column: "source_block_id", ReferencesTable: "cfg_blocks", ReferencesColumn: "id"},
		{Column: "target_block_id", ReferencesTable: "cfg_blocks", ReferencesColumn: "id"},
	},
}

var cfgBlockStatementsTable = Table{
	Name: "cfg_block_statements", FlushPriority: 62,
	Columns: []Column{
		{Name: "block_id", Type: TypeInteger, NotNull: true},
		{Name: "seq", Type: TypeInteger, NotNull: true},
		{Name: "statement_type", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "detail", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_cfg_block_statements_block", Columns: []string{"block_id"}}},
	ForeignKeys: []ForeignKeyIntent{{Column: "block_id", ReferencesTable: "cfg_blocks", ReferencesColumn: "id"}},
}

var apiEndpointsTable = Table{
	Name: "api_endpoints", FlushPriority: 70,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "method", Type: TypeText, NotNull: true},
		{Name: "pattern", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "path", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "handler_function", Type: TypeText, NotNull: true},
	},
	Indexes: []Index{{Name: "idx_api_endpoints_path", Columns: []string{"method", "path"}}},
}

var apiEndpointControlsTable = Table{
	Name: "api_endpoint_controls", FlushPriority: 71,
	Columns: []Column{
		{Name: "endpoint_file", Type: TypeText, NotNull: true},
		{Name: "endpoint_line", Type: TypeInteger, NotNull: true},
		{Name: "seq", Type: TypeInteger, NotNull: true},
		{Name: "control_name", Type: TypeText, NotNull: true},
	},
	Indexes:     []Index{{Name: "idx_api_endpoint_controls_parent", Columns: []string{"endpoint_file", "endpoint_line"}}},
	ForeignKeys: []ForeignKeyIntent{{Column: "endpoint_file", ReferencesTable: "api_endpoints", ReferencesColumn: "file"}},
}

var ormModelsTable = Table{
	Name: "orm_models", FlushPriority: 80,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "model_name", Type: TypeText, NotNull: true},
		{Name: "framework", Type: TypeText, NotNull: true},
		{Name: "field_name", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "field_type", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_orm_models_name", Columns: []string{"model_name"}}},
}

var ormQueriesTable = Table{
	Name: "orm_queries", FlushPriority: 81,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "in_function", Type: TypeText, NotNull: true},
		{Name: "model_name", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "method", Type: TypeText, NotNull: true},
		{Name: "framework", Type: TypeText, NotNull: true},
		{Name: "argument_expr", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_orm_queries_framework", Columns: []string{"framework", "method"}}},
}

var middlewareChainsTable = Table{
	Name: "middleware_chains", FlushPriority: 90,
	Columns: []Column{
		{Name: "endpoint_file", Type: TypeText, NotNull: true},
		{Name: "endpoint_line", Type: TypeInteger, NotNull: true},
		{Name: "seq", Type: TypeInteger, NotNull: true},
		{Name: "middleware_name", Type: TypeText, NotNull: true},
		{Name: "middleware_file", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_middleware_chains_endpoint", Columns: []string{"endpoint_file", "endpoint_line", "seq"}}},
}

var validationFrameworkUsageTable = Table{
	Name: "validation_framework_usage", FlushPriority: 100,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "in_function", Type: TypeText, NotNull: true},
		{Name: "framework", Type: TypeText, NotNull: true},
		{Name: "method", Type: TypeText, NotNull: true},
		{Name: "target_var", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "schema_name", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_validation_usage_target", Columns: []string{"file", "target_var"}}},
}

var reactComponentsTable = Table{
	Name: "react_components", FlushPriority: 110,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "component_name", Type: TypeText, NotNull: true},
		{Name: "kind", Type: TypeText, NotNull: true, Default: "'function'"},
		{Name: "hooks_used", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_react_components_file", Columns: []string{"file"}}},
}

var djangoArtifactsTable = Table{
	Name: "django_artifacts", FlushPriority: 111,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "kind", Type: TypeText, NotNull: true},
		{Name: "name", Type: TypeText, NotNull: true},
		{Name: "detail", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_django_artifacts_kind", Columns: []string{"kind", "name"}}},
}

var terraformResourcesTable = Table{
	Name: "terraform_resources", FlushPriority: 120,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "resource_type", Type: TypeText, NotNull: true},
		{Name: "resource_name", Type: TypeText, NotNull: true},
		{Name: "attributes_json", Type: TypeText, NotNull: true, Default: "'{}'"},
	},
	Indexes: []Index{{Name: "idx_terraform_resources_addr", Columns: []string{"resource_type", "resource_name"}, Unique: true}},
}

var terraformVariablesTable = Table{
	Name: "terraform_variables", FlushPriority: 121,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "variable_name", Type: TypeText, NotNull: true},
		{Name: "default_expr", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_terraform_variables_name", Columns: []string{"variable_name"}}},
}

var terraformOutputsTable = Table{
	Name: "terraform_outputs", FlushPriority: 122,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "output_name", Type: TypeText, NotNull: true},
		{Name: "value_expr", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_terraform_outputs_name", Columns: []string{"output_name"}}},
}

var terraformFindingsTable = Table{
	Name: "terraform_findings", FlushPriority: 123,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "resource_type", Type: TypeText, NotNull: true},
		{Name: "resource_name", Type: TypeText, NotNull: true},
		{Name: "category", Type: TypeText, NotNull: true},
		{Name: "severity", Type: TypeText, NotNull: true},
		{Name: "message", Type: TypeText, NotNull: true, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_terraform_findings_addr", Columns: []string{"resource_type", "resource_name"}}},
}

var jwtPatternsTable = Table{
	Name: "jwt_patterns", FlushPriority: 130,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "in_function", Type: TypeText, NotNull: true},
		{Name: "library", Type: TypeText, NotNull: true},
		{Name: "operation", Type: TypeText, NotNull: true},
		{Name: "algorithm", Type: TypeText, Default: "''"},
	},
	Indexes: []Index{{Name: "idx_jwt_patterns_op", Columns: []string{"operation"}}},
}

var envVarUsageTable = Table{
	Name: "env_var_usage", FlushPriority: 131,
	Columns: []Column{
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "in_function", Type: TypeText, NotNull: true},
		{Name: "var_name", Type: TypeText, NotNull: true},
		{Name: "untrusted", Type: TypeInteger, NotNull: true, Default: "0"},
	},
	Indexes: []Index{{Name: "idx_env_var_usage_name", Columns: []string{"var_name"}}},
}

// JSX duplicate tables (§3.1 "JSX duplicates"): identical shape to
// symbols/refs/assignments/assignment_sources/function_call_args, written
// only from the jsx=preserve extraction pass. CFG is intentionally never
// duplicated here — it is extracted only in the transformed pass.
var symbolsJSXTable = withSuffix(symbolsTable, "_jsx", 140)
var refsJSXTable = withSuffix(refsTable, "_jsx", 141)
var assignmentsJSXTable = withSuffix(assignmentsTable, "_jsx", 142)
var assignmentSourcesJSXTable = withSuffix(assignmentSourcesTable, "_jsx", 143)
var functionCallArgsJSXTable = withSuffix(functionCallArgsTable, "_jsx", 144)

func withSuffix(t Table, suffix string, priority int) Table {
	out := t
	out.Name = t.Name + suffix
	out.FlushPriority = priority
	renamedIdx := make([]Index, len(t.Indexes))
	for i, idx := range t.Indexes {
		renamedIdx[i] = Index{Name: idx.Name + suffix, Columns: idx.Columns, Unique: idx.Unique}
	}
	out.Indexes = renamedIdx
	return out
}

var findingsConsolidatedTable = Table{
	Name: "findings_consolidated", FlushPriority: 200,
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncr: true},
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger, NotNull: true},
		{Name: "column", Type: TypeInteger, NotNull: true, Default: "0"},
		{Name: "rule", Type: TypeText, NotNull: true},
		{Name: "tool", Type: TypeText, NotNull: true},
		{Name: "message", Type: TypeText, NotNull: true},
		{Name: "severity", Type: TypeText, NotNull: true},
		{Name: "category", Type: TypeText, NotNull: true, Default: "''"},
		{Name: "confidence", Type: TypeText, NotNull: true, Default: "'medium'"},
		{Name: "code_snippet", Type: TypeText},
		{Name: "cwe", Type: TypeText},
		{Name: "timestamp", Type: TypeText, NotNull: true},
		{Name: "details_json", Type: TypeText, NotNull: true, Default: "'{}'"},
	},
	Indexes: []Index{{Name: "idx_findings_consolidated_file", Columns: []string{"file", "line"}}},
}

// resolved_flow_audit is written only by Stage 3; it and its taint_flows
// mirror are the only tables Stage 3 ever writes to in the repo-index
// store (§2 "no back-edge" rule).
var resolvedFlowAuditTable = Table{
	Name: "resolved_flow_audit", FlushPriority: 210,
	Columns: []Column{
		{Name: "id", Type: TypeText, NotNull: true, PrimaryKey: true},
		{Name: "source_file", Type: TypeText, NotNull: true},
		{Name: "source_line", Type: TypeInteger, NotNull: true},
		{Name: "source_variable", Type: TypeText, NotNull: true},
		{Name: "sink_file", Type: TypeText, NotNull: true},
		{Name: "sink_line", Type: TypeInteger, NotNull: true},
		{Name: "sink_function", Type: TypeText, NotNull: true},
		{Name: "sink_type", Type: TypeText, NotNull: true},
		{Name: "vulnerability_type", Type: TypeText, NotNull: true},
		{Name: "status", Type: TypeText, NotNull: true},
		{Name: "hops", Type: TypeInteger, NotNull: true},
		{Name: "path_json", Type: TypeText, NotNull: true},
		{Name: "sanitizer_file", Type: TypeText},
		{Name: "sanitizer_line", Type: TypeInteger},
		{Name: "sanitizer_method", Type: TypeText},
		{Name: "created_at", Type: TypeText, NotNull: true},
	},
	Indexes: []Index{
		{Name: "idx_resolved_flow_audit_sink", Columns: []string{"sink_file", "sink_line"}},
		{Name: "idx_resolved_flow_audit_dedup", Columns: []string{"source_file", "source_line", "sink_file", "sink_line", "sink_function"}},
	},
}

// taint_flows is a backward-compatible materialized mirror of VULNERABLE
// rows from resolved_flow_audit, kept for legacy vulnerabilities-only
// consumers (§9 "Backward-compatible surfaces").
var taintFlowsTable = Table{
	Name: "taint_flows", FlushPriority: 211,
	Columns: []Column{
		{Name: "audit_id", Type: TypeText, NotNull: true, PrimaryKey: true},
		{Name: "source_file", Type: TypeText, NotNull: true},
		{Name: "source_line", Type: TypeInteger, NotNull: true},
		{Name: "sink_file", Type: TypeText, NotNull: true},
		{Name: "sink_line", Type: TypeInteger, NotNull: true},
		{Name: "vulnerability_type", Type: TypeText, NotNull: true},
		{Name: "hops", Type: TypeInteger, NotNull: true},
	},
	Indexes: []Index{{Name: "idx_taint_flows_sink", Columns: []string{"sink_file", "sink_line"}}},
}
