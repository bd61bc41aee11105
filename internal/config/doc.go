// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

/*
Package config loads Tripwire configuration with koanf.

Sources are layered, later ones winning:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $TRIPWIRE_CONFIG, ./tripwire.yaml, or /etc/tripwire/tripwire.yaml
 3. TRIPWIRE_* environment variables listed in envMappings

Lists such as notification webhooks are only configurable from the file.
Comma-separated environment values are split for the slice fields named in
sliceConfigPaths.
*/
package config
