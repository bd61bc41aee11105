// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package services adapts Tripwire components to suture.Service.
//
// HTTPServerService binds the API listener, serves until its context is
// canceled, then drains with a bounded Shutdown. ReaperService runs periodic housekeeping: expiring mitigations and
// dropping idle rate-limiter windows.
package services
