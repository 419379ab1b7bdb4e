// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import "github.com/curia-foundation/curia/lib/servicetoken"

// TokenAudience is the audience the engine requires on every
// capability token it accepts. Minting tools set it; a token minted
// for a different service fails verification here.
const TokenAudience = "curation"

// Grant action names enforced by the engine. Socket actions map onto
// this namespace ("task/create" checks "curation/task/create"); the
// namespace prefix keeps one token system usable across sibling
// services. Targeted actions name their target in the table below;
// the rest are checked on the action pattern alone.
//
//	action                  target
//	curation/task/create    task type
//	curation/submit         task type
//	curation/karma/self     agent handle
const (
	ActionInfo        = "curation/info"
	ActionTaskCreate  = "curation/task/create"
	ActionTaskList    = "curation/task/list"
	ActionTaskGet     = "curation/task/get"
	ActionTaskFlagged = "curation/task/flagged"
	ActionSubmit      = "curation/submit"
	ActionKarmaSelf   = "curation/karma/self"
	ActionKarmaRead   = "curation/karma/read"
	ActionDecay       = "curation/decay"
	ActionAudit       = "curation/audit"
)

// ActionAll is the wildcard pattern matching every engine operation.
const ActionAll = "curation/**"

// OperatorGrants is the grant set for operator tokens: every engine
// operation on every target.
func OperatorGrants() []servicetoken.Grant {
	return []servicetoken.Grant{{
		Actions: []string{ActionAll},
		Targets: []string{"**"},
	}}
}

// SchedulerGrants is the grant set for the external scheduler that
// invokes periodic decay. Nothing else.
func SchedulerGrants() []servicetoken.Grant {
	return []servicetoken.Grant{{
		Actions: []string{ActionDecay},
	}}
}

// HostGrants is the grant set for the content host consulting the
// access gate and leaderboard over HTTP.
func HostGrants() []servicetoken.Grant {
	return []servicetoken.Grant{{
		Actions: []string{ActionKarmaRead},
	}}
}

// AgentGrants is the grant set the engine mints when an agent's
// identity verification succeeds: task listing and submission on any
// task type, plus karma lookup scoped to the agent's own handle.
func AgentGrants(handle string) []servicetoken.Grant {
	return []servicetoken.Grant{
		{
			Actions: []string{ActionTaskList, ActionSubmit},
			Targets: []string{"**"},
		},
		{
			Actions: []string{ActionKarmaSelf},
			Targets: []string{handle},
		},
	}
}
