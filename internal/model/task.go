package model

import "time"

// Stage is a column of an iteration board.
type Stage string

const (
	StageTodo  Stage = "TODO"
	StageDoing Stage = "DOING"
	StageDone  Stage = "DONE"
)

// Stages lists iteration stages in board order.
var Stages = []Stage{StageTodo, StageDoing, StageDone}

func (s Stage) Valid() bool {
	switch s {
	case StageTodo, StageDoing, StageDone:
		return true
	}
	return false
}

// Location is where a task currently sits: the project backlog when
// IterationID is empty, otherwise one stage of one iteration.
type Location struct {
	IterationID string `json:"iterationId,omitempty"`
	Stage       Stage  `json:"stage,omitempty"`
}

// Backlog is the project backlog location.
var Backlog = Location{}

func InIteration(iterationID string, stage Stage) Location {
	return Location{IterationID: iterationID, Stage: stage}
}

func (l Location) IsBacklog() bool {
	return l.IterationID == ""
}

func (l Location) String() string {
	if l.IsBacklog() {
		return "backlog"
	}
	return l.IterationID + "/" + string(l.Stage)
}

type Task struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StoryPoints int       `json:"storyPoints"`
	ProjectID   string    `json:"projectId"`
	Location    Location  `json:"location"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskContent is the editable part of a task.
type TaskContent struct {
	Title       string
	Description string
	StoryPoints int
}

// MoveSpec declares the location the caller believes the task occupies and
// where it should go.
type MoveSpec struct {
	From Location
	To   Location
}
