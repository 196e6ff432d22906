// Copyright (c) 2024 docker-provision authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// daemonConfigMode makes the daemon configuration world readable but only
// owner writable, matching what dockerd expects.
const daemonConfigMode = os.FileMode(0644)

// daemonConfigObject is the document model for the daemon configuration
// file: a JSON object whose key order is preserved, since arbitrary
// third-party keys may already be present from other tooling and must
// survive a rewrite in their original position.
type daemonConfigObject = orderedmap.OrderedMap[string, interface{}]

var (
	// e.g. "10m", "512k", "1g"
	logMaxSizePattern = regexp.MustCompile(`^[1-9][0-9]*[kmg]?$`)

	// a positive decimal count
	logMaxFilePattern = regexp.MustCompile(`^[1-9][0-9]*$`)
)

// daemonConfigUpdate describes the desired settings a reconciliation run
// applies to the daemon configuration.
type daemonConfigUpdate struct {
	// applyDefaults requests the default settings block (log driver,
	// log rotation, buildkit).
	applyDefaults bool

	// dataRoot, when non-empty, is the custom daemon data directory.
	// It must be an absolute path.
	dataRoot string

	// log rotation values used by the defaults block.
	logMaxSize string
	logMaxFile string
}

func newDaemonConfigObject() *daemonConfigObject {
	return orderedmap.New[string, interface{}]()
}

// daemonDefaults builds the default settings block. The rotation values
// come from the configuration file and are validated here so that a
// malformed override degrades to a warning rather than corrupting the
// daemon configuration.
func daemonDefaults(maxSize, maxFile string) (*daemonConfigObject, error) {
	if !logMaxSizePattern.MatchString(maxSize) {
		return nil, fmt.Errorf("invalid log max-size %q", maxSize)
	}

	if !logMaxFilePattern.MatchString(maxFile) {
		return nil, fmt.Errorf("invalid log max-file %q", maxFile)
	}

	logOpts := newDaemonConfigObject()
	logOpts.Set("max-size", maxSize)
	logOpts.Set("max-file", maxFile)

	features := newDaemonConfigObject()
	features.Set("buildkit", true)

	defaults := newDaemonConfigObject()
	defaults.Set("log-driver", "json-file")
	defaults.Set("log-opts", logOpts)
	defaults.Set("features", features)

	return defaults, nil
}

// parseDaemonConfig parses content into the document model. Nested objects
// are decoded as ordered maps as well, so their key order is preserved too.
func parseDaemonConfig(content []byte) (*daemonConfigObject, error) {
	obj := newDaemonConfigObject()

	if err := json.Unmarshal(content, obj); err != nil {
		return nil, err
	}

	return obj, nil
}

// copyDaemonConfig returns a shallow copy: top-level keys are copied in
// order, values are shared. The merge only ever replaces whole top-level
// values, never mutates them, so sharing is safe.
func copyDaemonConfig(src *daemonConfigObject) *daemonConfigObject {
	dst := newDaemonConfigObject()

	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		dst.Set(pair.Key, pair.Value)
	}

	return dst
}

// mergeTopLevel overwrites each top-level key of dst with the
// corresponding value from updates. This is deliberately not a recursive
// merge: the "log-opts" and "features" objects from the defaults fully
// replace any existing objects of the same name.
func mergeTopLevel(dst, updates *daemonConfigObject) {
	for pair := updates.Oldest(); pair != nil; pair = pair.Next() {
		dst.Set(pair.Key, pair.Value)
	}
}

// canonicalJSON re-marshals data with sorted keys so two JSON documents
// can be compared structurally regardless of key order or formatting.
func canonicalJSON(data []byte) ([]byte, error) {
	var v map[string]interface{}

	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

// renderDaemonConfig serializes the document in its natural key order as
// pretty JSON with a trailing newline.
func renderDaemonConfig(obj *daemonConfigObject) ([]byte, error) {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

// computeDaemonConfig implements the merge as a pure function of the
// existing file content and the desired settings.
//
// The returned changed value is true when a write is required: either the
// file did not exist (or held invalid JSON), or the computed document
// differs structurally from the on-disk content.
func computeDaemonConfig(existing []byte, exists bool, update daemonConfigUpdate) (desired *daemonConfigObject, changed bool) {
	current := newDaemonConfigObject()

	parseable := false
	if exists && len(bytes.TrimSpace(existing)) > 0 {
		parsed, err := parseDaemonConfig(existing)
		if err != nil {
			provLog.Warnf("existing daemon configuration is not valid JSON, treating as empty: %v", err)
		} else {
			current = parsed
			parseable = true
		}
	}

	desired = copyDaemonConfig(current)

	if update.applyDefaults {
		defaults, err := daemonDefaults(update.logMaxSize, update.logMaxFile)
		if err != nil {
			// degrade: continue without the defaults block
			provLog.Warnf("not applying daemon defaults: %v", err)
		} else {
			mergeTopLevel(desired, defaults)
		}
	}

	if update.dataRoot != "" {
		if !filepath.IsAbs(update.dataRoot) {
			// degrade: the CLI validates this long before we get
			// here, so only a bad programmatic caller hits it
			provLog.Warnf("not applying non-absolute data-root %q", update.dataRoot)
		} else {
			desired.Set("data-root", update.dataRoot)
		}
	}

	if !exists || !parseable {
		// no valid on-disk document to compare against
		return desired, true
	}

	desiredJSON, err := json.Marshal(desired)
	if err != nil {
		provLog.Warnf("cannot canonicalize desired daemon configuration: %v", err)
		return desired, true
	}

	canonicalDesired, err := canonicalJSON(desiredJSON)
	if err != nil {
		return desired, true
	}

	canonicalExisting, err := canonicalJSON(existing)
	if err != nil {
		return desired, true
	}

	return desired, !bytes.Equal(canonicalDesired, canonicalExisting)
}

// reconcileDaemonConfig brings the daemon configuration file at path in
// line with the requested settings and reports whether it rewrote the
// file. No write happens when the on-disk content already matches, so an
// unchanged configuration never triggers a daemon restart.
//
// The write replaces the full file content in one operation and never
// deletes the file.
func reconcileDaemonConfig(path string, update daemonConfigUpdate) (changed bool, err error) {
	existing, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	if !exists {
		provLog.Infof("daemon configuration %v does not exist, creating", path)
	}

	desired, changed := computeDaemonConfig(existing, exists, update)
	if !changed {
		provLog.Infof("daemon configuration %v already up to date", path)
		return false, nil
	}

	content, err := renderDaemonConfig(desired)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}

	if err := os.WriteFile(path, content, daemonConfigMode); err != nil {
		return false, err
	}

	// WriteFile only applies the mode on creation
	if err := os.Chmod(path, daemonConfigMode); err != nil {
		return false, err
	}

	provLog.Infof("daemon configuration %v updated", path)

	return true, nil
}
