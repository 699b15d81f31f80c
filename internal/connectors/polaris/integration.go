package polaris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/findings-relay/findings-relay/internal/connectors/registry"
	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
	"github.com/findings-relay/findings-relay/internal/findings"
	"github.com/findings-relay/findings-relay/internal/metrics"
)

// Skip reasons recorded in findings_skipped_total.
const (
	skipNoMainBranch     = "no_main_branch"
	skipBranchLookup     = "branch_lookup_failed"
	skipIssueList        = "issue_list_failed"
	skipIssueDetail      = "issue_detail_failed"
	skipNoOpenTransition = "no_open_transition"
	skipInvalidRecord    = "invalid_record"
)

// Integration walks one Polaris application: projects, their main branch, and its issues.
type Integration struct {
	client        *Client
	applicationID string
}

func NewIntegration(client *Client, applicationID string) *Integration {
	return &Integration{
		client:        client,
		applicationID: strings.TrimSpace(applicationID),
	}
}

func (i *Integration) Kind() string { return Kind }
func (i *Integration) Name() string { return i.applicationID }

func (i *Integration) InitEvents() []registry.Event {
	return []registry.Event{
		{Source: Kind, Stage: "authenticate", Current: 0, Total: 1, Message: "authenticating"},
		{Source: Kind, Stage: "list-taxonomies", Current: 0, Total: 1, Message: "loading severity taxonomy"},
		{Source: Kind, Stage: "get-application", Current: 0, Total: 1, Message: "resolving application"},
		{Source: Kind, Stage: "walk-projects", Current: 0, Total: registry.UnknownTotal, Message: "walking projects"},
		{Source: Kind, Stage: "report-issues", Current: 0, Total: registry.UnknownTotal, Message: "reporting issues"},
	}
}

func (i *Integration) Run(ctx context.Context, deps registry.IntegrationDeps) error {
	if i.client == nil {
		return errors.New("polaris client is not configured")
	}
	if i.applicationID == "" {
		return errors.New("polaris application id is required")
	}
	report := deps.ReportFunc()
	logger := deps.Log().With("source", Kind, "application_id", i.applicationID)
	started := time.Now()
	logger.Info("syncing Polaris")

	if err := i.client.Authenticate(ctx); err != nil {
		report(registry.Event{Source: Kind, Stage: "authenticate", Message: err.Error(), Err: err})
		return err
	}
	report(registry.Event{Source: Kind, Stage: "authenticate", Current: 1, Total: 1, Message: "authenticated"})

	taxonomy, err := i.loadTaxonomy(ctx, logger)
	if err != nil {
		report(registry.Event{Source: Kind, Stage: "list-taxonomies", Message: err.Error(), Err: err})
		return err
	}
	report(registry.Event{Source: Kind, Stage: "list-taxonomies", Current: 1, Total: 1, Message: fmt.Sprintf("%d issue types mapped to a severity", len(taxonomy))})

	app, err := i.client.GetApplication(ctx, i.applicationID)
	if err != nil {
		err = sessionErr(err)
		report(registry.Event{Source: Kind, Stage: "get-application", Message: err.Error(), Err: err})
		return err
	}
	logger = logger.With("application", app.Name)
	report(registry.Event{Source: Kind, Stage: "get-application", Current: 1, Total: 1, Message: fmt.Sprintf("application %s has %d projects", app.Name, len(app.ProjectIDs))})

	total := int64(len(app.ProjectIDs))
	emitted := 0
	for idx, projectID := range app.ProjectIDs {
		n, err := i.syncProject(ctx, deps, logger, taxonomy, projectID)
		emitted += n
		if err != nil {
			report(registry.Event{Source: Kind, Stage: "walk-projects", Current: int64(idx), Total: total, Message: err.Error(), Err: err})
			return err
		}
		report(registry.Event{Source: Kind, Stage: "walk-projects", Current: int64(idx + 1), Total: total, Message: fmt.Sprintf("projects %d/%d", idx+1, total)})
	}

	report(registry.Event{Source: Kind, Stage: "report-issues", Current: int64(emitted), Total: int64(emitted), Message: fmt.Sprintf("reported %d issues", emitted), Done: true})
	logger.Info("polaris sync complete", "projects", len(app.ProjectIDs), "findings", emitted, "duration", time.Since(started))
	return nil
}

// loadTaxonomy degrades to an empty taxonomy unless the failure is fatal.
func (i *Integration) loadTaxonomy(ctx context.Context, logger *slog.Logger) (SeverityTaxonomy, error) {
	taxonomies, err := i.client.ListTaxonomies(ctx)
	if err != nil {
		if restclient.IsFatal(err) {
			return nil, sessionErr(err)
		}
		logger.Warn("polaris taxonomy lookup failed; every severity will be Unknown", "err", err)
		return SeverityTaxonomy{}, nil
	}
	taxonomy := BuildSeverityTaxonomy(taxonomies)
	if len(taxonomy) == 0 {
		logger.Warn("polaris has no severity taxonomy; every severity will be Unknown", "taxonomies", len(taxonomies))
	}
	return taxonomy, nil
}

// syncProject reports the issues of the project's main branch. Only fatal errors are returned.
func (i *Integration) syncProject(ctx context.Context, deps registry.IntegrationDeps, logger *slog.Logger, taxonomy SeverityTaxonomy, projectID string) (int, error) {
	logger = logger.With("project_id", projectID)

	branches, err := i.client.ListBranches(ctx, projectID)
	if err != nil {
		if restclient.IsFatal(err) {
			return 0, sessionErr(err)
		}
		logger.Warn("polaris branch lookup failed; skipping project", "err", err)
		skipped(skipBranchLookup)
		return 0, nil
	}
	branch, ok := SelectMainBranch(branches)
	if !ok {
		logger.Warn("polaris project has no main branch; skipping project", "branches", len(branches))
		skipped(skipNoMainBranch)
		return 0, nil
	}

	projectName, err := i.client.GetProjectName(ctx, projectID)
	if err != nil {
		if restclient.IsFatal(err) {
			return 0, sessionErr(err)
		}
		logger.Warn("polaris project name lookup failed", "err", err)
		projectName = projectID
	}
	logger = logger.With("project", projectName, "branch", branch.Name, "branch_id", branch.ID)

	list, err := i.client.ListIssues(ctx, projectID, branch.ID)
	if err != nil {
		if restclient.IsFatal(err) {
			return 0, sessionErr(err)
		}
		logger.Warn("polaris issue listing failed; skipping project", "err", err)
		skipped(skipIssueList)
		return 0, nil
	}
	logger.Debug("polaris issues listed", "issues", len(list.Issues), "invalid", len(list.Invalid))
	for _, invalid := range list.Invalid {
		logger.Warn("polaris issue is incomplete; skipping issue", "err", invalid)
		skipped(skipInvalidRecord)
	}

	emitted := 0
	for _, issue := range list.Issues {
		f, ok, err := i.buildFinding(ctx, logger, taxonomy, projectID, branch.ID, issue)
		if err != nil {
			return emitted, err
		}
		if !ok {
			continue
		}
		f.Project = projectName
		deps.Emit(f)
		emitted++
	}
	return emitted, nil
}

func (i *Integration) buildFinding(ctx context.Context, logger *slog.Logger, taxonomy SeverityTaxonomy, projectID, branchID string, issue Issue) (findings.Finding, bool, error) {
	logger = logger.With("issue_id", issue.ID, "issue_key", issue.IssueKey)

	rule, severity := issue.IssueTypeID, findings.SeverityUnknown
	typeName, err := i.client.GetIssueTypeName(ctx, issue.IssueTypeID)
	switch {
	case err == nil:
		rule, severity = typeName, taxonomy.Lookup(typeName)
	case restclient.IsFatal(err):
		return findings.Finding{}, false, sessionErr(err)
	default:
		logger.Warn("polaris issue type lookup failed; reporting the type id with severity Unknown", "issue_type_id", issue.IssueTypeID, "err", err)
	}

	transitions, err := i.client.GetIssueTransitions(ctx, issue.ID, projectID, branchID)
	if err != nil {
		if restclient.IsFatal(err) {
			return findings.Finding{}, false, sessionErr(err)
		}
		logger.Warn("polaris issue detail lookup failed; skipping issue", "err", err)
		skipped(skipIssueDetail)
		return findings.Finding{}, false, nil
	}
	if _, invalid := OpenedDates(transitions); len(invalid) > 0 {
		logger.Warn("polaris issue has unparsable transition dates", "dates", invalid)
	}
	firstSeen, err := MostRecentOpen(transitions)
	if err != nil {
		logger.Warn("polaris issue has no opened transition; skipping issue", "transitions", len(transitions))
		skipped(skipNoOpenTransition)
		return findings.Finding{}, false, nil
	}

	status := findings.TriageUnknown
	triage, err := i.client.GetTriage(ctx, projectID, issue.IssueKey)
	switch {
	case err == nil:
		status = triage.Value.Status()
		if triage.DismissalRequested() {
			if err := i.logApprovalURL(ctx, logger, projectID, branchID, issue); err != nil {
				return findings.Finding{}, false, err
			}
		}
	case restclient.IsFatal(err):
		return findings.Finding{}, false, sessionErr(err)
	default:
		logger.Warn("polaris triage lookup failed; status Unknown", "err", err)
	}

	return findings.Finding{
		ID:                issue.ID,
		Rule:              rule,
		DetectionCategory: findings.CategoryStaticAnalysis,
		Severity:          severity,
		FirstSeen:         firstSeen,
		TriageStatus:      status,
		Source:            Kind,
	}, true, nil
}

// logApprovalURL points a reviewer at a dismissal waiting for approval.
func (i *Integration) logApprovalURL(ctx context.Context, logger *slog.Logger, projectID, branchID string, issue Issue) error {
	if issue.LatestRunID == "" {
		logger.Warn("polaris dismissal requested but issue has no latest run")
		return nil
	}
	revisionID, err := i.client.GetRunRevision(ctx, issue.LatestRunID)
	if err != nil {
		if restclient.IsFatal(err) {
			return sessionErr(err)
		}
		logger.Warn("polaris run lookup failed; approval url unavailable", "run_id", issue.LatestRunID, "err", err)
		return nil
	}
	logger.Info("polaris dismissal awaiting approval",
		"review_url", ApprovalReviewURL(i.client.BaseURL(), projectID, branchID, revisionID, issue.ID),
	)
	return nil
}

// sessionErr marks a 401 after authentication; the JWT is never refreshed.
func sessionErr(err error) error {
	if restclient.StatusCode(err) == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrSessionRejected, err)
	}
	return err
}

func skipped(reason string) {
	metrics.FindingsSkippedTotal.WithLabelValues(Kind, reason).Inc()
}
