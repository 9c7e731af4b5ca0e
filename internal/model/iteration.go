package model

import "time"

type Iteration struct {
	ID        string     `json:"_id"`
	ProjectID string     `json:"projectId"`
	Title     string     `json:"title"`
	Deadline  time.Time  `json:"deadline"`
	Tasks     StageTasks `json:"tasks"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// StageTasks holds the tasks of an iteration partitioned by stage.
type StageTasks struct {
	Todo  []*Task `json:"TODO"`
	Doing []*Task `json:"DOING"`
	Done  []*Task `json:"DONE"`
}

func NewStageTasks() StageTasks {
	return StageTasks{
		Todo:  make([]*Task, 0),
		Doing: make([]*Task, 0),
		Done:  make([]*Task, 0),
	}
}

// Of returns the task list of stage s.
func (st *StageTasks) Of(s Stage) []*Task {
	switch s {
	case StageTodo:
		return st.Todo
	case StageDoing:
		return st.Doing
	case StageDone:
		return st.Done
	}
	return nil
}

// Append adds t to the list of stage s.
func (st *StageTasks) Append(s Stage, t *Task) {
	switch s {
	case StageTodo:
		st.Todo = append(st.Todo, t)
	case StageDoing:
		st.Doing = append(st.Doing, t)
	case StageDone:
		st.Done = append(st.Done, t)
	}
}
