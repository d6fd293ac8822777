package model

import "time"

// Job is a unit of field work assigned to one or more employees.
type Job struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`

	// AssignedEmployees holds Employee IDs in string form. Nothing checks
	// that the referenced employees exist.
	AssignedEmployees []string `json:"assignedEmployees" mapstructure:"assignedEmployees"`

	SyncStatus SyncStatus `json:"syncStatus,omitempty" mapstructure:"-"`

	// Extra carries server fields the client does not model
	// (schedule, address, budget, ...).
	Extra map[string]any `json:"-" mapstructure:"-"`
}

// JobFromRaw normalizes a server record into a Job.
func JobFromRaw(raw map[string]any, now time.Time) (Job, error) {
	res := JobFields.Apply(raw, now)

	var j Job
	extra, err := decodeResult(res, &j)
	if err != nil {
		return Job{}, err
	}
	j.Extra = extra
	j.SyncStatus = SyncStatusSynced
	return j, nil
}

// DefaultJobs is the demo set shown before the first successful sync of a
// fresh profile.
func DefaultJobs() []Job {
	return []Job{
		{
			ID:                "demo-1",
			Title:             "Roof inspection",
			Description:       "Inspect flashing and gutters after storm damage report.",
			AssignedEmployees: []string{},
			SyncStatus:        SyncStatusSynced,
		},
		{
			ID:                "demo-2",
			Title:             "Drywall install",
			Description:       "Hang and tape drywall in units 3A-3C.",
			AssignedEmployees: []string{},
			SyncStatus:        SyncStatusSynced,
		},
	}
}

func (j Job) EntityID() string      { return j.ID }
func (j Job) SyncState() SyncStatus { return j.SyncStatus }
func (j Job) Inherit(Job) Job       { return j }

func (j Job) WithSyncState(s SyncStatus) Job {
	j.SyncStatus = s
	return j
}

// IsAssigned reports whether employeeID is among the job's assignees.
func (j Job) IsAssigned(employeeID string) bool {
	for _, id := range j.AssignedEmployees {
		if id == employeeID {
			return true
		}
	}
	return false
}

func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	return marshalFlat(plain(j), j.Extra)
}

func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	var p plain
	extra, err := unmarshalFlat(data, &p, JobFields)
	if err != nil {
		return err
	}
	*j = Job(p)
	j.Extra = extra
	return nil
}
