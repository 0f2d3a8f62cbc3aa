package store

import "time"

// ComponentKeys is the fixed set of component keys tracked in a project's
// quantities map.
var ComponentKeys = []string{"sensor", "terminal", "plastic", "iu_bracket", "heat_insulator"}

// LookupKinds are the editor-maintained lists used to populate choice controls.
var LookupKinds = []string{"regions", "pocs", "suppliers", "statuses"}

func IsLookupKind(kind string) bool {
	for _, k := range LookupKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Quantity struct {
	Qty     int  `json:"qty"`
	Bundled bool `json:"bundled"`
}

// DefaultQuantities returns a quantities map with every component key present,
// zero and not bundled.
func DefaultQuantities() map[string]Quantity {
	quantities := make(map[string]Quantity, len(ComponentKeys))
	for _, key := range ComponentKeys {
		quantities[key] = Quantity{}
	}
	return quantities
}

type Project struct {
	ID           string
	SupplierName string
	PORef        string
	FirstContact *time.Time
	MainPOC      string
	Region       string
	IsNPI        string // "Yes" or "No"
	BusinessArea string // "External" or "Internal"
	Status       string
	Quantities   map[string]Quantity
	LastActivity *time.Time
}

// ProjectPatch carries a merge update: nil fields leave the stored value
// untouched.
type ProjectPatch struct {
	SupplierName *string
	PORef        *string
	FirstContact *time.Time
	MainPOC      *string
	Region       *string
	IsNPI        *string
	BusinessArea *string
	Status       *string
	Quantities   map[string]Quantity
}

type Comment struct {
	ID        string
	ProjectID string
	Text      string
	User      string
	Timestamp time.Time
}

type LookupEntry struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
