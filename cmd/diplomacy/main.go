// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command diplomacy drives the LLM agent pipeline for Diplomacy phases.
//
// Usage:
//
//	diplomacy replay testdata/spring_1901.yaml
//	diplomacy replay fixture.yaml --overview results/overview.jsonl --serve
//	diplomacy parse orders reply.txt --legal legal.yaml
//	diplomacy parse messages reply.txt --sender FRANCE --active GERMANY,ENGLAND
//	diplomacy assign --seed 7
//
// Configuration is read from --config (created with defaults when missing).
// Without --config the built-in defaults are used.
//
// Example requests while `replay --serve` is running:
//
//	curl http://127.0.0.1:9464/health
//	curl http://127.0.0.1:9464/v1/stats | jq
//	curl http://127.0.0.1:9464/metrics
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
