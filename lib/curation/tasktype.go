// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import "fmt"

// TaskType is one of the closed set of curation work kinds. Each type
// carries its karma point value, its default submission quota, and
// whether a comprehension check is expected, so a task cannot be
// created with a type the consensus rules do not know how to score.
type TaskType string

// The task type vocabulary. Quick-glance types (triage, tag, link)
// ask for a judgement about a content reference; deep-read types
// (extract, summarize, verify) require working through the content
// itself and therefore carry an embedded comprehension check.
const (
	// TaskTriage classifies a content item as signal or noise.
	TaskTriage TaskType = "triage"

	// TaskTag assigns a category to a content item.
	TaskTag TaskType = "tag"

	// TaskLink connects a content item to related curated entries.
	TaskLink TaskType = "link"

	// TaskExtract pulls the factual claims out of a content item.
	TaskExtract TaskType = "extract"

	// TaskSummarize condenses a content item into a curated summary.
	TaskSummarize TaskType = "summarize"

	// TaskVerify checks an extracted claim against its source.
	TaskVerify TaskType = "verify"
)

// typeTraits is the per-type scoring behavior. The quotas follow the
// platform's operating defaults: quick-glance types want five
// independent looks, deep-read types want three, and a summary is a
// single high-effort work product whose quality the comprehension
// check guards instead of peer agreement.
type typeTraits struct {
	points      float64
	quota       int
	expectCheck bool
}

var taskTypes = map[TaskType]typeTraits{
	TaskTriage:    {points: 1, quota: 5},
	TaskTag:       {points: 0.5, quota: 5},
	TaskLink:      {points: 3, quota: 3},
	TaskExtract:   {points: 3, quota: 3, expectCheck: true},
	TaskSummarize: {points: 10, quota: 1, expectCheck: true},
	TaskVerify:    {points: 3, quota: 3, expectCheck: true},
}

// Valid reports whether the type is in the closed set.
func (t TaskType) Valid() bool {
	_, ok := taskTypes[t]
	return ok
}

// Points is the karma credited to each agent whose submission matches
// the consensus value when a task of this type closes.
//
// Panics on an unknown type: task specs are validated at creation, so
// an invalid type reaching here is a programmer error.
func (t TaskType) Points() float64 {
	return t.traits().points
}

// DefaultSubmissionsNeeded is the submission quota applied when a
// task spec leaves submissions_needed at zero.
func (t TaskType) DefaultSubmissionsNeeded() int {
	return t.traits().quota
}

// ExpectsCheck reports whether tasks of this type must carry a
// verification question and expected answer. The check is the
// anti-gaming mechanism for deep-read types: a submission whose
// answer fails still counts toward the quota but is excluded from
// the weighted tally.
func (t TaskType) ExpectsCheck() bool {
	return t.traits().expectCheck
}

func (t TaskType) traits() typeTraits {
	traits, ok := taskTypes[t]
	if !ok {
		panic(fmt.Sprintf("curation: unknown task type %q", string(t)))
	}
	return traits
}

// TaskTypes returns the closed set in a stable order, for listings
// and CLI help text.
func TaskTypes() []TaskType {
	return []TaskType{TaskTriage, TaskTag, TaskLink, TaskExtract, TaskSummarize, TaskVerify}
}

// ParseTaskType validates a wire string against the closed set.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown task type %q", ErrInvalidTaskSpec, s)
	}
	return t, nil
}
