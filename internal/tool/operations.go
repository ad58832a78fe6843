package tool

import (
	"context"
	"maps"
	"strings"

	"github.com/ebrain-io/ebrain/internal/catalog"
	"github.com/ebrain-io/ebrain/internal/redmine"
	"github.com/ebrain-io/ebrain/internal/servicenow"
)

// IssueTracker is the issue-tracker side the operations need.
type IssueTracker interface {
	ListIssues(ctx context.Context, params map[string]any) (any, error)
	GetIssue(ctx context.Context, id int) (any, error)
	CreateIssue(ctx context.Context, issue redmine.Issue) (any, error)
	UpdateIssue(ctx context.Context, id int, upd redmine.IssueUpdate) (any, error)
}

// RecordStore is the ITSM table side the operations need.
type RecordStore interface {
	GetRecords(ctx context.Context, table string, q servicenow.Query) (any, error)
	GetRecord(ctx context.Context, table, sysID string) (any, error)
	CreateRecord(ctx context.Context, table string, rec servicenow.Record) (any, error)
	UpdateRecord(ctx context.Context, table, sysID string, rec servicenow.Record) (any, error)
	DeleteRecord(ctx context.Context, table, sysID string) (any, error)
}

// QuerySyntax documents the encoded query language of the Table API.
const QuerySyntax = `Query syntax (sysparm_query):
- Simple: "state=1"
- AND: "state=1^priority=2"
- Dot-walk a reference field: "problem_id.number=PRB0040002"
- Search by name: "caller_id.name=John Doe"
- Contains: "short_descriptionLIKEnetwork"
incident.problem_id references a sys_id; to match a PRB number always dot-walk with "problem_id.number=PRB...".`

const defaultLimit = 10

// Operations returns the assistant's operation table bound to the given
// adapters. The order is stable.
func Operations(issues IssueTracker, records RecordStore) []Operation {
	return []Operation{
		{
			Name:        "get_redmine_issues",
			AgentName:   "getRedmineIssues",
			Description: "Get issues from Redmine, optionally filtered by project and status.",
			ReadOnly:    true,
			Schema: Schema{Params: []Param{
				{Name: "project_id", Type: TypeInteger, Description: "Numeric project id"},
				{Name: "status_id", Type: TypeString, Description: `Status filter: "open", "closed", "*" or a status id`},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return issues.ListIssues(ctx, args)
			},
		},
		{
			Name:        "get_redmine_issue",
			AgentName:   "getRedmineIssue",
			Description: "Get a single Redmine issue by id.",
			ReadOnly:    true,
			Schema: Schema{Params: []Param{
				{Name: "id", Type: TypeInteger, Required: true, Description: "Issue id"},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return issues.GetIssue(ctx, args["id"].(int))
			},
		},
		{
			Name:        "create_redmine_issue",
			AgentName:   "createRedmineIssue",
			Description: "Create a new issue in Redmine.",
			Schema: Schema{Params: []Param{
				{Name: "project_id", Type: TypeInteger, Required: true, Description: "Numeric project id"},
				{Name: "subject", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "priority_id", Type: TypeInteger},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				issue := redmine.Issue{
					ProjectID: args["project_id"].(int),
					Subject:   args["subject"].(string),
				}
				issue.Description, _ = args["description"].(string)
				issue.PriorityID, _ = args["priority_id"].(int)
				return issues.CreateIssue(ctx, issue)
			},
		},
		{
			Name:        "update_redmine_issue",
			AgentName:   "updateRedmineIssue",
			Description: "Update fields of an existing Redmine issue. Only the given fields change; notes adds a journal comment.",
			Schema: Schema{Params: []Param{
				{Name: "id", Type: TypeInteger, Required: true, Description: "Issue id"},
				{Name: "subject", Type: TypeString},
				{Name: "description", Type: TypeString},
				{Name: "status_id", Type: TypeInteger},
				{Name: "priority_id", Type: TypeInteger},
				{Name: "notes", Type: TypeString},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				upd := redmine.IssueUpdate{
					Subject:     optional[string](args, "subject"),
					Description: optional[string](args, "description"),
					StatusID:    optional[int](args, "status_id"),
					PriorityID:  optional[int](args, "priority_id"),
					Notes:       optional[string](args, "notes"),
				}
				return issues.UpdateIssue(ctx, args["id"].(int), upd)
			},
		},
		{
			Name:        "get_servicenow_incidents",
			AgentName:   "getServiceNowIncidents",
			Description: "Get recent incidents from ServiceNow.",
			ReadOnly:    true,
			Schema: Schema{Params: []Param{
				{Name: "limit", Type: TypeInteger, Default: defaultLimit, Description: "Maximum number of records"},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return records.GetRecords(ctx, "incident", servicenow.Query{Limit: args["limit"].(int)})
			},
		},
		{
			Name:        "create_servicenow_incident",
			AgentName:   "createServiceNowIncident",
			Description: "Create a new incident in ServiceNow.",
			Schema: Schema{Params: []Param{
				{Name: "short_description", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return records.CreateRecord(ctx, "incident", servicenow.RecordFromMap(args))
			},
		},
		{
			Name:      "get_servicenow_records",
			AgentName: "getServiceNowRecords",
			Description: "Get records from any ServiceNow table (e.g. incident, problem, change_request, sc_request).\n" +
				QuerySyntax + "\nCommon fields per table:\n" + catalog.DescribeAll(),
			ReadOnly: true,
			Schema: Schema{Params: []Param{
				{Name: "table", Type: TypeString, Required: true},
				{Name: "query", Type: TypeString, Description: "Encoded query"},
				{Name: "limit", Type: TypeInteger, Default: defaultLimit},
				{Name: "fields", Type: TypeString, Description: "Comma-separated fields to return; defaults to the common fields of known tables"},
				{Name: "display_value", Type: TypeBoolean, Default: true, Description: "Resolve reference and choice fields to display values"},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				table := args["table"].(string)
				dv := args["display_value"].(bool)
				q := servicenow.Query{Limit: args["limit"].(int), DisplayValue: &dv}
				q.Query, _ = args["query"].(string)
				if f, _ := args["fields"].(string); f != "" {
					q.Fields = splitFields(f)
				} else {
					q.Fields = catalog.FieldsFor(table)
				}
				return records.GetRecords(ctx, table, q)
			},
		},
		{
			Name:        "get_servicenow_record",
			AgentName:   "getServiceNowRecord",
			Description: "Get a single ServiceNow record by table and sys_id.",
			ReadOnly:    true,
			Schema: Schema{Params: []Param{
				{Name: "table", Type: TypeString, Required: true},
				{Name: "sys_id", Type: TypeString, Required: true},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return records.GetRecord(ctx, args["table"].(string), args["sys_id"].(string))
			},
		},
		{
			Name:        "create_servicenow_record",
			AgentName:   "createServiceNowRecord",
			Description: "Create a record in any ServiceNow table (e.g. incident, problem, change_request). Additional fields are passed through.",
			Schema: Schema{AllowExtra: true, Params: []Param{
				{Name: "table", Type: TypeString, Required: true},
				{Name: "short_description", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				fields := without(args, "table")
				return records.CreateRecord(ctx, args["table"].(string), servicenow.RecordFromMap(fields))
			},
		},
		{
			Name:        "update_servicenow_record",
			AgentName:   "updateServiceNowRecord",
			Description: "Update a ServiceNow record. Only the given fields are sent; additional fields are passed through.",
			Schema: Schema{AllowExtra: true, Params: []Param{
				{Name: "table", Type: TypeString, Required: true},
				{Name: "sys_id", Type: TypeString, Required: true},
				{Name: "short_description", Type: TypeString},
				{Name: "description", Type: TypeString},
				{Name: "state", Type: TypeString},
				{Name: "priority", Type: TypeString},
				{Name: "urgency", Type: TypeString},
				{Name: "impact", Type: TypeString},
				{Name: "work_notes", Type: TypeString},
				{Name: "close_code", Type: TypeString},
				{Name: "close_notes", Type: TypeString},
				{Name: "assigned_to", Type: TypeString},
				{Name: "assignment_group", Type: TypeString},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				fields := compact(without(args, "table", "sys_id"))
				return records.UpdateRecord(ctx, args["table"].(string), args["sys_id"].(string), servicenow.RecordFromMap(fields))
			},
		},
		{
			Name:        "delete_servicenow_record",
			AgentName:   "deleteServiceNowRecord",
			Description: "Delete a ServiceNow record by table and sys_id.",
			Schema: Schema{Params: []Param{
				{Name: "table", Type: TypeString, Required: true},
				{Name: "sys_id", Type: TypeString, Required: true},
			}},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return records.DeleteRecord(ctx, args["table"].(string), args["sys_id"].(string))
			},
		},
	}
}

func optional[T any](args map[string]any, key string) *T {
	v, ok := args[key].(T)
	if !ok {
		return nil
	}
	return &v
}

func without(args map[string]any, keys ...string) map[string]any {
	out := maps.Clone(args)
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// compact drops nil values. Empty strings are real values and stay.
func compact(m map[string]any) map[string]any {
	maps.DeleteFunc(m, func(_ string, v any) bool { return v == nil })
	return m
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
