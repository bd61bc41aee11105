// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

/*
Package supervisor runs Tripwire's long-lived services under suture v4.

The tree has three layers so a failure in one does not take down the others:

	"tripwire"
	├── LayerData ("data-layer")
	│   ├── scheduler (delayed rule executions)
	│   ├── reaper (expired mitigations, idle limiter windows)
	│   └── badger-gc (when the badger store is used)
	├── LayerMessaging ("messaging-layer")
	│   └── ingest-consumer (when the event bus is enabled)
	└── LayerAPI ("api-layer")
	    └── api-server

Services are added with SupervisorTree.Add and a Layer. Run serves the tree
until its context is canceled and then logs any service that missed the
shutdown timeout.

Supervisor events are logged through sutureslog into the zerolog-backed
slog handler from the logging package.
*/
package supervisor
