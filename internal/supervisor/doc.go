// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

/*
Package supervisor runs Episodic's long-lived services under a suture v4
tree with automatic restart and graceful shutdown.

	RootSupervisor ("episodic")
	├── CoreSupervisor ("core-layer")
	│   └── StatusTracker
	├── SyncSupervisor ("sync-layer")
	│   ├── drain Scheduler
	│   └── Periodic full sync (if sync.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if server.enabled)

A crash in the sync layer does not take the admin API down with it, and
the API keeps reporting queue state while sync services restart.

Supervisor events are logged through sutureslog on top of the zerolog
slog adapter (logging.NewSlogLogger).

The job queue loops are not supervised services. They are owned by main
and closed after the tree stops so in-flight jobs can finish.
*/
package supervisor
