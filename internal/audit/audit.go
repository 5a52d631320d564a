// Package audit implements the Flow Audit Writer (§4.8, "C8"): it takes
// the taint analyzer's in-memory findings and gives them the only two
// durable homes they ever get — full-provenance rows in the repo-index
// store's resolved_flow_audit table and its legacy vulnerabilities-only
// mirror, taint_flows (the only two tables Stage 3 ever writes,
// preserving the dual-store's one-way data flow, §5). A SARIF rendering is offered
// alongside for external tooling, built directly from the same findings
// rather than from a second pass over either table.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	sarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/sastcore/engine/internal/store"
	"github.com/sastcore/engine/internal/taint"
)

// Stats summarizes one audit-write run.
type Stats struct {
	RecordsWritten int
	Vulnerable     int
	Sanitized      int
}

// Write persists every finding into resolved_flow_audit, plus a
// taint_flows row for each one classified vulnerable, inside its own
// transaction against the given repo-index store (the same
// begin/flush/commit-or-rollback shape internal/graphstore uses).
func Write(s *store.Store, findings []taint.Finding) (Stats, error) {
	var stats Stats
	now := time.Now().UTC().Format(time.RFC3339)

	if err := s.Begin(); err != nil {
		return stats, fmt.Errorf("audit: begin: %w", err)
	}

	for _, f := range findings {
		pathJSON, err := json.Marshal(f.Path)
		if err != nil {
			return stats, fmt.Errorf("audit: marshal path for %s:%d -> %s:%d: %w", f.SourceFile, f.SourceLine, f.SinkFile, f.SinkLine, err)
		}

		id := uuid.New().String()
		row := store.Row{
			"id":                 id,
			"source_file":        f.SourceFile,
			"source_line":        f.SourceLine,
			"source_variable":    f.SourceVarRoot,
			"sink_file":          f.SinkFile,
			"sink_line":          f.SinkLine,
			"sink_function":      f.SinkFunction,
			"sink_type":          f.Category,
			"vulnerability_type": f.Category,
			"status":             f.Status,
			"hops":               f.Hops,
			"path_json":          string(pathJSON),
			"created_at":         now,
		}
		if f.SanitizerRule != "" {
			row["sanitizer_method"] = f.SanitizerRule
		}
		if err := s.Add("resolved_flow_audit", row); err != nil {
			_ = s.Rollback()
			return stats, fmt.Errorf("audit: write resolved_flow_audit: %w", err)
		}
		stats.RecordsWritten++

		if f.Status == "vulnerable" {
			stats.Vulnerable++
			if err := s.Add("taint_flows", store.Row{
				"audit_id":           id,
				"source_file":        f.SourceFile,
				"source_line":        f.SourceLine,
				"sink_file":          f.SinkFile,
				"sink_line":          f.SinkLine,
				"vulnerability_type": f.Category,
				"hops":               f.Hops,
			}); err != nil {
				_ = s.Rollback()
				return stats, fmt.Errorf("audit: write taint_flows: %w", err)
			}
		} else {
			stats.Sanitized++
		}
	}

	if err := s.FlushAll(); err != nil {
		_ = s.Rollback()
		return stats, fmt.Errorf("audit: flush: %w", err)
	}
	if err := s.Commit(); err != nil {
		return stats, fmt.Errorf("audit: commit: %w", err)
	}
	return stats, nil
}

// BuildSARIF renders findings as a SARIF 2.1.0 report, one rule per
// distinct category and one result per finding, with a two-location code
// flow (source, sink) for every finding whose source and sink lines are
// both known (positive), whatever its status.
func BuildSARIF(findings []taint.Finding) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("audit: new sarif report: %w", err)
	}
	run := sarif.NewRunWithInformationURI("sastcore", "https://github.com/sastcore/engine")

	seenRules := make(map[string]bool)
	for _, f := range findings {
		if seenRules[f.Category] {
			continue
		}
		seenRules[f.Category] = true
		run.AddRule(f.Category).
			WithDescription(fmt.Sprintf("Tainted data reaches a %s sink", f.Category)).
			WithName(f.Category).
			WithDefaultConfiguration(sarif.NewReportingConfiguration().WithLevel(severityToLevel(f.Severity)))
	}

	for _, f := range findings {
		message := fmt.Sprintf("%s flow from %s:%d to %s:%d (%s)", f.Category, f.SourceFile, f.SourceLine, f.SinkFile, f.SinkLine, f.Status)
		result := run.CreateResultForRule(f.Category).WithMessage(sarif.NewTextMessage(message))

		result.AddLocation(sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.SinkFile)).
				WithRegion(sarif.NewRegion().WithStartLine(f.SinkLine)),
		))

		if f.SourceLine > 0 && f.SinkLine > 0 {
			sourceLoc := sarif.NewLocation().
				WithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.SourceFile)).
						WithRegion(sarif.NewRegion().WithStartLine(f.SourceLine)),
				).
				WithMessage(sarif.NewTextMessage("taint source: " + f.SourceVarRoot))
			sinkLoc := sarif.NewLocation().
				WithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.SinkFile)).
						WithRegion(sarif.NewRegion().WithStartLine(f.SinkLine)),
				).
				WithMessage(sarif.NewTextMessage("taint sink"))

			threadFlow := sarif.NewThreadFlow().WithLocations([]*sarif.ThreadFlowLocation{
				sarif.NewThreadFlowLocation().WithLocation(sourceLoc),
				sarif.NewThreadFlowLocation().WithLocation(sinkLoc),
			})
			result.WithCodeFlows([]*sarif.CodeFlow{
				sarif.NewCodeFlow().WithThreadFlows([]*sarif.ThreadFlow{threadFlow}),
			})
		}
	}

	report.AddRun(run)
	return report, nil
}

func severityToLevel(severity string) string {
	switch severity {
	case "critical", "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "note"
	}
}
