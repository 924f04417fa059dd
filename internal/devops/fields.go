package devops

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Azure DevOps field reference names consumed by the sync
const (
	FieldID               = "System.Id"
	FieldTeamProject      = "System.TeamProject"
	FieldWorkItemType     = "System.WorkItemType"
	FieldTitle            = "System.Title"
	FieldState            = "System.State"
	FieldAssignedTo       = "System.AssignedTo"
	FieldIterationPath    = "System.IterationPath"
	FieldAreaPath         = "System.AreaPath"
	FieldCreatedDate      = "System.CreatedDate"
	FieldChangedDate      = "System.ChangedDate"
	FieldChangedBy        = "System.ChangedBy"
	FieldRemainingWork    = "Microsoft.VSTS.Scheduling.RemainingWork"
	FieldCompletedWork    = "Microsoft.VSTS.Scheduling.CompletedWork"
	FieldOriginalEstimate = "Microsoft.VSTS.Scheduling.OriginalEstimate"
	FieldClosedDate       = "Microsoft.VSTS.Common.ClosedDate"
)

// SyncedFields is the field list requested from the work items batch API
var SyncedFields = []string{
	FieldID,
	FieldTeamProject,
	FieldWorkItemType,
	FieldTitle,
	FieldState,
	FieldAssignedTo,
	FieldIterationPath,
	FieldAreaPath,
	FieldCreatedDate,
	FieldChangedDate,
	FieldRemainingWork,
	FieldCompletedWork,
	FieldOriginalEstimate,
	FieldClosedDate,
}

// IdentityRef is a user reference. Azure sends either an object or, in older
// payloads, a "Display Name <unique@name>" string.
type IdentityRef struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName,omitempty"`
}

// String returns the display name, falling back to the unique name
func (r *IdentityRef) String() string {
	if r == nil {
		return ""
	}
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.UniqueName
}

var identityPattern = regexp.MustCompile(`^(.*?)\s*<([^>]+)>$`)

func decodeIdentity(v gjson.Result) *IdentityRef {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return nil
	case v.IsObject():
		return &IdentityRef{
			ID:          v.Get("id").String(),
			DisplayName: v.Get("displayName").String(),
			UniqueName:  v.Get("uniqueName").String(),
		}
	case v.Type == gjson.String:
		raw := strings.TrimSpace(v.String())
		if raw == "" {
			return nil
		}
		if m := identityPattern.FindStringSubmatch(raw); m != nil {
			return &IdentityRef{DisplayName: m[1], UniqueName: m[2]}
		}
		return &IdentityRef{DisplayName: raw}
	default:
		return nil
	}
}

// Fields is the typed view of a work item's field bag. Pointer fields are nil
// when the payload did not carry the field or carried an explicit null.
type Fields struct {
	TeamProject      string
	WorkItemType     string
	Title            string
	State            *string
	AssignedTo       *IdentityRef
	IterationPath    string
	AreaPath         string
	CreatedDate      *time.Time
	ChangedDate      *time.Time
	ChangedBy        *IdentityRef
	RemainingWork    *float64
	CompletedWork    *float64
	OriginalEstimate *float64
	ClosedDate       *time.Time

	// Raw is the untouched fields object
	Raw json.RawMessage
}

// fieldPath escapes the dots in a reference name so gjson treats it as one key
func fieldPath(name string) string {
	return strings.ReplaceAll(name, ".", `\.`)
}

// DecodeFields decodes an Azure fields object
func DecodeFields(obj gjson.Result) Fields {
	get := func(name string) gjson.Result {
		return obj.Get(fieldPath(name))
	}

	f := Fields{
		TeamProject:      get(FieldTeamProject).String(),
		WorkItemType:     get(FieldWorkItemType).String(),
		Title:            get(FieldTitle).String(),
		State:            decodeString(get(FieldState)),
		AssignedTo:       decodeIdentity(get(FieldAssignedTo)),
		IterationPath:    get(FieldIterationPath).String(),
		AreaPath:         get(FieldAreaPath).String(),
		CreatedDate:      decodeTime(get(FieldCreatedDate)),
		ChangedDate:      decodeTime(get(FieldChangedDate)),
		ChangedBy:        decodeIdentity(get(FieldChangedBy)),
		RemainingWork:    decodeNumber(get(FieldRemainingWork)),
		CompletedWork:    decodeNumber(get(FieldCompletedWork)),
		OriginalEstimate: decodeNumber(get(FieldOriginalEstimate)),
		ClosedDate:       decodeTime(get(FieldClosedDate)),
	}
	if obj.Exists() {
		f.Raw = json.RawMessage(obj.Raw)
	}
	return f
}

// decodeNumber accepts JSON numbers and numeric strings
func decodeNumber(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		n := v.Float()
		return &n
	case gjson.String:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

func decodeString(v gjson.Result) *string {
	if v.Type != gjson.String {
		return nil
	}
	s := v.String()
	return &s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func decodeTime(v gjson.Result) *time.Time {
	if v.Type != gjson.String {
		return nil
	}
	raw := strings.TrimSpace(v.String())
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
