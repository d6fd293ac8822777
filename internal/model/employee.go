package model

import "time"

// Employee status values.
const (
	EmployeeActive   = "active"
	EmployeeInactive = "inactive"
)

// Employee is a crew member as listed in the roster.
type Employee struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	Position string `json:"position" mapstructure:"position"`
	Email    string `json:"email" mapstructure:"email"`
	Phone    string `json:"phone" mapstructure:"phone"`
	Status   string `json:"status" mapstructure:"status"`

	CurrentJob  string   `json:"currentJob,omitempty" mapstructure:"currentJob"`
	WeeklyHours *float64 `json:"weeklyHours,omitempty" mapstructure:"weeklyHours"`
	Location    string   `json:"location,omitempty" mapstructure:"location"`
	Avatar      string   `json:"avatar,omitempty" mapstructure:"avatar"`

	SyncStatus SyncStatus     `json:"syncStatus,omitempty" mapstructure:"-"`
	Extra      map[string]any `json:"-" mapstructure:"-"`
}

// EmployeeFromRaw normalizes a server record into an Employee.
func EmployeeFromRaw(raw map[string]any, now time.Time) (Employee, error) {
	res := EmployeeFields.Apply(raw, now)

	var e Employee
	extra, err := decodeResult(res, &e)
	if err != nil {
		return Employee{}, err
	}
	e.Extra = extra
	e.SyncStatus = SyncStatusSynced
	return e, nil
}

func (e Employee) EntityID() string          { return e.ID }
func (e Employee) SyncState() SyncStatus     { return e.SyncStatus }
func (e Employee) Inherit(Employee) Employee { return e }
func (e Employee) IsActive() bool            { return e.Status == EmployeeActive }

func (e Employee) WithSyncState(s SyncStatus) Employee {
	e.SyncStatus = s
	return e
}

func (e Employee) MarshalJSON() ([]byte, error) {
	type plain Employee
	return marshalFlat(plain(e), e.Extra)
}

func (e *Employee) UnmarshalJSON(data []byte) error {
	type plain Employee
	var p plain
	extra, err := unmarshalFlat(data, &p, EmployeeFields)
	if err != nil {
		return err
	}
	*e = Employee(p)
	e.Extra = extra
	return nil
}
