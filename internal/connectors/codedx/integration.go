package codedx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/findings-relay/findings-relay/internal/connectors/registry"
	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
	"github.com/findings-relay/findings-relay/internal/metrics"
)

const (
	skipFindingsList = "findings_list_failed"
	skipInvalidDate  = "invalid_date"
	skipInvalidRow   = "invalid_record"
)

// Integration walks the child projects of one Code Dx parent project.
type Integration struct {
	client   *Client
	parentID int64
}

func NewIntegration(client *Client, parentID int64) *Integration {
	return &Integration{client: client, parentID: parentID}
}

func (i *Integration) Kind() string { return Kind }
func (i *Integration) Name() string { return strconv.FormatInt(i.parentID, 10) }

func (i *Integration) InitEvents() []registry.Event {
	return []registry.Event{
		{Source: Kind, Stage: "list-child-projects", Current: 0, Total: 1, Message: "listing child projects"},
		{Source: Kind, Stage: "list-findings", Current: 0, Total: registry.UnknownTotal, Message: "listing findings"},
	}
}

func (i *Integration) Run(ctx context.Context, deps registry.IntegrationDeps) error {
	if i.client == nil {
		return errors.New("codedx client is not configured")
	}
	report := deps.ReportFunc()
	logger := deps.Log().With("source", Kind, "parent_id", i.parentID)
	started := time.Now()
	logger.Info("syncing Code Dx")

	children, err := i.client.ListChildProjects(ctx, i.parentID)
	if err != nil {
		report(registry.Event{Source: Kind, Stage: "list-child-projects", Message: err.Error(), Err: err})
		return err
	}
	parentName, err := i.client.GetProjectName(ctx, i.parentID)
	if err != nil {
		report(registry.Event{Source: Kind, Stage: "list-child-projects", Message: err.Error(), Err: err})
		return err
	}
	logger = logger.With("parent", parentName)
	report(registry.Event{Source: Kind, Stage: "list-child-projects", Current: 1, Total: 1, Message: fmt.Sprintf("parent %s has %d child projects", parentName, len(children))})

	total := int64(len(children))
	emitted := 0
	for idx, child := range children {
		projectLogger := logger.With("project_id", child.ID, "project", child.Name)
		projectLogger.Info("fetching findings for project")

		table, err := i.client.ListFindings(ctx, child.ID)
		if err != nil {
			if restclient.IsFatal(err) {
				report(registry.Event{Source: Kind, Stage: "list-findings", Current: int64(idx), Total: total, Message: err.Error(), Err: err})
				return err
			}
			projectLogger.Warn("codedx findings listing failed; skipping project", "err", err)
			metrics.FindingsSkippedTotal.WithLabelValues(Kind, skipFindingsList).Inc()
			continue
		}

		for _, invalid := range table.Invalid {
			projectLogger.Warn("codedx finding is incomplete; skipping finding", "err", invalid)
			metrics.FindingsSkippedTotal.WithLabelValues(Kind, skipInvalidRow).Inc()
		}
		for _, r := range table.Findings {
			f, err := Normalize(r)
			if err != nil {
				projectLogger.Error("failed to parse date", "finding_id", r.ID, "first_seen_on", r.FirstSeenOn, "err", err)
				metrics.FindingsSkippedTotal.WithLabelValues(Kind, skipInvalidDate).Inc()
				continue
			}
			f.Project = child.Name
			deps.Emit(f)
			emitted++
		}
		report(registry.Event{Source: Kind, Stage: "list-findings", Current: int64(idx + 1), Total: total, Message: fmt.Sprintf("projects %d/%d", idx+1, total)})
	}

	report(registry.Event{Source: Kind, Stage: "list-findings", Current: total, Total: total, Message: fmt.Sprintf("reported %d findings", emitted), Done: true})
	logger.Info("codedx sync complete", "projects", len(children), "findings", emitted, "duration", time.Since(started))
	return nil
}
