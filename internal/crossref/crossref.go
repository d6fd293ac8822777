// Package crossref connects jobs to the employees they reference.
// Assignments are plain ID lists, so nothing guarantees the referenced
// employees exist; callers get the dangling IDs back instead of errors.
package crossref

import "github.com/nhle/crewsync/internal/model"

// Roster indexes employees by ID.
type Roster map[string]model.Employee

// NewRoster builds a Roster. The first employee with a given ID wins.
func NewRoster(employees []model.Employee) Roster {
	r := make(Roster, len(employees))
	for _, e := range employees {
		if _, ok := r[e.ID]; ok {
			continue
		}
		r[e.ID] = e
	}
	return r
}

// Assignees returns the employees assigned to job, in assignment order,
// and the assigned IDs no employee matches. Repeated IDs count once.
func (r Roster) Assignees(job model.Job) (found []model.Employee, dangling []string) {
	seen := make(map[string]bool)
	for _, id := range job.AssignedEmployees {
		if seen[id] {
			continue
		}
		seen[id] = true

		if e, ok := r[id]; ok {
			found = append(found, e)
		} else {
			dangling = append(dangling, id)
		}
	}
	return found, dangling
}

// Names returns display names for job's assignees. Unknown IDs are shown
// as "#<id>".
func (r Roster) Names(job model.Job) []string {
	names := make([]string, 0, len(job.AssignedEmployees))
	seen := make(map[string]bool)
	for _, id := range job.AssignedEmployees {
		if seen[id] {
			continue
		}
		seen[id] = true

		e, ok := r[id]
		switch {
		case !ok:
			names = append(names, "#"+id)
		case e.Name == "":
			names = append(names, e.ID)
		default:
			names = append(names, e.Name)
		}
	}
	return names
}

// Dangling maps job IDs to the assigned employee IDs that do not exist.
// Jobs without dangling references are left out.
func (r Roster) Dangling(jobs []model.Job) map[string][]string {
	out := make(map[string][]string)
	for _, job := range jobs {
		if _, dangling := r.Assignees(job); len(dangling) > 0 {
			out[job.ID] = dangling
		}
	}
	return out
}

// Workload counts the jobs assigned to each known employee.
func (r Roster) Workload(jobs []model.Job) map[string]int {
	out := make(map[string]int, len(r))
	for _, job := range jobs {
		found, _ := r.Assignees(job)
		for _, e := range found {
			out[e.ID]++
		}
	}
	return out
}
