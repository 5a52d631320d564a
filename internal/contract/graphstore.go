package contract

// GraphStore is the contract for the graph store (<root>/.pf/graphs.db):
// one discriminated `nodes`/`edges` schema shared by the call graph, DFG,
// CFG mirror, and framework graphs (§3.2). Stage 2 is the sole writer.
var GraphStore = &Contract{Tables: []Table{
	graphNodesTable,
	graphEdgesTable,
}}

var graphNodesTable = Table{
	Name: "nodes", FlushPriority: 0,
	Columns: []Column{
		{Name: "id", Type: TypeText, NotNull: true, PrimaryKey: true},
		{Name: "graph_type", Type: TypeText, NotNull: true},
		{Name: "file", Type: TypeText, NotNull: true},
		{Name: "function", Type: TypeText},
		{Name: "variable_name", Type: TypeText},
		{Name: "scope", Type: TypeText},
		{Name: "node_type", Type: TypeText, NotNull: true},
		{Name: "metadata", Type: TypeText, NotNull: true, Default: "'{}'"},
	},
	Indexes: []Index{
		{Name: "idx_nodes_graph_type", Columns: []string{"graph_type"}},
		{Name: "idx_nodes_file", Columns: []string{"file"}},
	},
}

var graphEdgesTable = Table{
	Name: "edges", FlushPriority: 1,
	Columns: []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncr: true},
		{Name: "source_id", Type: TypeText, NotNull: true},
		{Name: "target_id", Type: TypeText, NotNull: true},
		{Name: "edge_type", Type: TypeText, NotNull: true},
		{Name: "graph_type", Type: TypeText, NotNull: true},
		{Name: "line", Type: TypeInteger},
		{Name: "metadata", Type: TypeText, NotNull: true, Default: "'{}'"},
	},
	Indexes: []Index{
		{Name: "idx_edges_source", Columns: []string{"source_id"}},
		{Name: "idx_edges_target", Columns: []string{"target_id"}},
		{Name: "idx_edges_graph_type", Columns: []string{"graph_type"}},
	},
	ForeignKeys: []ForeignKeyIntent{
		{Column: "source_id", ReferencesTable: "nodes", ReferencesColumn: "id"},
		{Column: "target_id", ReferencesTable: "nodes", ReferencesColumn: "id"},
	},
}
