// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"testing"

	"github.com/curia-foundation/curia/lib/servicetoken"
)

func TestOperatorGrants(t *testing.T) {
	grants := OperatorGrants()
	allowed := []struct {
		action, target string
	}{
		{ActionTaskCreate, string(TaskTriage)},
		{ActionTaskGet, ""},
		{ActionTaskFlagged, ""},
		{ActionSubmit, string(TaskSummarize)},
		{ActionKarmaSelf, "finch"},
		{ActionDecay, ""},
		{ActionAudit, ""},
		{ActionInfo, ""},
	}
	for _, tc := range allowed {
		if !servicetoken.GrantsAllow(grants, tc.action, tc.target) {
			t.Errorf("operator denied %s on %q", tc.action, tc.target)
		}
	}
}

func TestAgentGrants(t *testing.T) {
	grants := AgentGrants("finch")

	if !servicetoken.GrantsAllow(grants, ActionTaskList, "") {
		t.Error("agent denied task listing")
	}
	for _, taskType := range TaskTypes() {
		if !servicetoken.GrantsAllow(grants, ActionSubmit, string(taskType)) {
			t.Errorf("agent denied submit on type %q", taskType)
		}
	}
	if !servicetoken.GrantsAllow(grants, ActionKarmaSelf, "finch") {
		t.Error("agent denied karma lookup on own handle")
	}

	// An agent token cannot create tasks, read other agents' karma,
	// run decay, or pull audit exports.
	denied := []struct {
		action, target string
	}{
		{ActionTaskCreate, string(TaskTriage)},
		{ActionKarmaSelf, "crow-9"},
		{ActionKarmaRead, ""},
		{ActionDecay, ""},
		{ActionAudit, ""},
		{ActionTaskGet, ""},
	}
	for _, tc := range denied {
		if servicetoken.GrantsAllow(grants, tc.action, tc.target) {
			t.Errorf("agent allowed %s on %q", tc.action, tc.target)
		}
	}
}

func TestSchedulerGrants(t *testing.T) {
	grants := SchedulerGrants()
	if !servicetoken.GrantsAllow(grants, ActionDecay, "") {
		t.Error("scheduler denied decay")
	}
	for _, action := range []string{ActionTaskCreate, ActionSubmit, ActionAudit, ActionKarmaRead} {
		if servicetoken.GrantsAllow(grants, action, "") {
			t.Errorf("scheduler allowed %s", action)
		}
	}
}

func TestHostGrants(t *testing.T) {
	grants := HostGrants()
	if !servicetoken.GrantsAllow(grants, ActionKarmaRead, "") {
		t.Error("content host denied karma reads")
	}

	// A content-host token cannot submit or touch task state.
	for _, tc := range []struct {
		action, target string
	}{
		{ActionSubmit, string(TaskTriage)},
		{ActionTaskCreate, string(TaskTriage)},
		{ActionTaskList, ""},
		{ActionDecay, ""},
	} {
		if servicetoken.GrantsAllow(grants, tc.action, tc.target) {
			t.Errorf("content host allowed %s on %q", tc.action, tc.target)
		}
	}
}
