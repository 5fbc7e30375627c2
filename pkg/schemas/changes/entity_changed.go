package changes

import "encoding/json"

// Operation is the semantic kind of change seen by consumers.
type Operation string

const (
	Create Operation = "create"
	Update Operation = "update"
	Delete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case Create, Update, Delete:
		return true
	}
	return false
}

// EntityChangedV1 is the payload published for every tracked change.
// Consumers re-read the record by ID; the payload never carries entity state.
type EntityChangedV1 struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
}

func UnmarshalEntityChangedV1(data []byte) (EntityChangedV1, error) {
	var r EntityChangedV1
	if err := json.Unmarshal(data, &r); err != nil {
		return r, err
	}
	return r, r.Validate()
}

func (r EntityChangedV1) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
