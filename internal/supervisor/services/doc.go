// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package services adapts components with a blocking start and a separate
// shutdown call to suture's context-aware Serve pattern.
package services
