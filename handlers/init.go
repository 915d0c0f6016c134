// handlers/init.go
package handlers

import (
	"backend/audit"
	"backend/consent"
	"backend/orchestrator"
)

// Shared services, wired once from main before the router starts.
var (
	Machine *consent.Machine
	Orch    *orchestrator.Orchestrator
	Sink    audit.Sink
)

func Init(m *consent.Machine, o *orchestrator.Orchestrator, s audit.Sink) {
	Machine = m
	Orch = o
	Sink = s
}
