package servicenow

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Reference is a reference-type field. The Table API returns a bare sys_id
// by default and a {display_value, link} object when display values are
// requested.
type Reference struct {
	Value        string `json:"value,omitempty"`
	DisplayValue string `json:"display_value,omitempty"`
	Link         string `json:"link,omitempty"`
}

// String returns the human readable form of the reference.
func (r Reference) String() string {
	if r.DisplayValue != "" {
		return r.DisplayValue
	}
	return r.Value
}

func (r Reference) MarshalJSON() ([]byte, error) {
	if r.DisplayValue == "" && r.Link == "" {
		return json.Marshal(r.Value)
	}
	type plain Reference
	return json.Marshal(plain(r))
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ref, ok := referenceFrom(v)
	if !ok {
		return fmt.Errorf("servicenow: cannot decode reference from %s", data)
	}
	*r = ref
	return nil
}

func referenceFrom(v any) (Reference, bool) {
	switch t := v.(type) {
	case string:
		return Reference{Value: t}, true
	case map[string]any:
		var ref Reference
		ref.Value, _ = t["value"].(string)
		ref.DisplayValue, _ = t["display_value"].(string)
		ref.Link, _ = t["link"].(string)
		return ref, true
	}
	return Reference{}, false
}

// Record is a row of any Table API table. Well-known fields are typed; any
// other field lives in Extra. Both are merged into one flat JSON object on
// the wire. A nil field is absent from the object; an empty string is sent
// as "".
type Record struct {
	SysID            *string
	Number           *string
	ShortDescription *string
	Description      *string
	State            *string
	Priority         *string
	Urgency          *string
	Impact           *string
	WorkNotes        *string
	CloseCode        *string
	CloseNotes       *string

	AssignedTo      *Reference
	AssignmentGroup *Reference
	CallerID        *Reference

	Extra map[string]any
}

func (r *Record) stringFields() map[string]**string {
	return map[string]**string{
		"sys_id":            &r.SysID,
		"number":            &r.Number,
		"short_description": &r.ShortDescription,
		"description":       &r.Description,
		"state":             &r.State,
		"priority":          &r.Priority,
		"urgency":           &r.Urgency,
		"impact":            &r.Impact,
		"work_notes":        &r.WorkNotes,
		"close_code":        &r.CloseCode,
		"close_notes":       &r.CloseNotes,
	}
}

func (r *Record) referenceFields() map[string]**Reference {
	return map[string]**Reference{
		"assigned_to":      &r.AssignedTo,
		"assignment_group": &r.AssignmentGroup,
		"caller_id":        &r.CallerID,
	}
}

// RecordFromMap splits a flat field map into typed fields and Extra. Values
// whose type does not match the typed field are kept in Extra unchanged.
func RecordFromMap(m map[string]any) Record {
	var r Record
	strs := r.stringFields()
	refs := r.referenceFields()
	for k, v := range m {
		if p, ok := strs[k]; ok {
			if s, ok := v.(string); ok {
				*p = &s
				continue
			}
		}
		if p, ok := refs[k]; ok {
			if ref, ok := referenceFrom(v); ok {
				*p = &ref
				continue
			}
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = v
	}
	return r
}

// Map returns the flat field map sent on the wire. Typed fields take
// precedence over Extra entries with the same key.
func (r Record) Map() map[string]any {
	m := maps.Clone(r.Extra)
	if m == nil {
		m = make(map[string]any)
	}
	for k, p := range r.stringFields() {
		if *p != nil {
			m[k] = **p
		}
	}
	for k, p := range r.referenceFields() {
		if *p != nil {
			m[k] = **p
		}
	}
	return m
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = RecordFromMap(m)
	return nil
}

// Get returns the display form of a field, typed or extra, and whether it is set.
func (r Record) Get(field string) (string, bool) {
	v, ok := r.Map()[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case Reference:
		return t.String(), true
	case map[string]any:
		if ref, ok := referenceFrom(t); ok {
			return ref.String(), true
		}
	}
	return fmt.Sprint(v), true
}

// DecodeRecords extracts records from a Table API payload: either a
// {"result": [...]} list or a {"result": {...}} single record.
func DecodeRecords(payload any) ([]Record, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("servicenow: unexpected payload %T", payload)
	}
	switch res := obj["result"].(type) {
	case []any:
		out := make([]Record, 0, len(res))
		for i, item := range res {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("servicenow: result[%d] is %T, not an object", i, item)
			}
			out = append(out, RecordFromMap(m))
		}
		return out, nil
	case map[string]any:
		return []Record{RecordFromMap(res)}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("servicenow: unexpected result %T", res)
	}
}
