// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package game holds the data model shared between the order/message pipeline
// and the external game engine.
//
// # Description
//
// The rules engine (adjacency, legality, phase processing, persistence) lives
// outside this module. What crosses the boundary is small:
//
//   - Universe: the legal actions per orderable location for one power, one turn.
//   - Power: a faction identifier ("FRANCE").
//   - MessageRecord: an addressed chat message produced by an agent.
//   - Engine: the calls the pipeline makes back into the game.
//
// Board is an in-memory Engine used by the replay harness and tests.
//
// # Thread Safety
//
// Universe is read-only after construction and safe for concurrent reads.
// Board serializes its own mutations.
package game
