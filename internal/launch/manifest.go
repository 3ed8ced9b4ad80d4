// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
)

const (
	androidNS       = "http://schemas.android.com/apk/res/android"
	actionMain      = "android.intent.action.MAIN"
	categoryLaunch  = "android.intent.category.LAUNCHER"
	elementActivity = "activity"
	elementAlias    = "activity-alias"
)

// ManifestInfo is what a run needs from AndroidManifest.xml.
type ManifestInfo struct {
	Package  string `json:"package"`
	Activity string `json:"activity"`
}

// Component returns the "package/activity" form accepted by `am start -n`.
func (m ManifestInfo) Component() string { return m.Package + "/" + m.Activity }

type manifestDoc struct {
	XMLName      xml.Name          `xml:"manifest"`
	Package      string            `xml:"package,attr"`
	Applications []applicationNode `xml:"application"`
}

type applicationNode struct {
	// Every child element, in document order.
	Children []componentNode `xml:",any"`
}

type componentNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr         `xml:",any,attr"`
	Filters []intentFilterNode `xml:"intent-filter"`
}

type intentFilterNode struct {
	Actions    []namedNode `xml:"action"`
	Categories []namedNode `xml:"category"`
}

type namedNode struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// androidName returns the android:name attribute. Manifests that forget the
// xmlns declaration leave the raw "android" prefix in Space, so accept that too.
func androidName(attrs []xml.Attr) string {
	for _, a := range attrs {
		if a.Name.Local == "name" && (a.Name.Space == androidNS || a.Name.Space == "android") {
			return a.Value
		}
	}
	return ""
}

func hasName(nodes []namedNode, want string) bool {
	for _, n := range nodes {
		if androidName(n.Attrs) == want {
			return true
		}
	}
	return false
}

// isLauncher reports whether one single filter carries both MAIN and LAUNCHER.
func (c componentNode) isLauncher() bool {
	for _, f := range c.Filters {
		if hasName(f.Actions, actionMain) && hasName(f.Categories, categoryLaunch) {
			return true
		}
	}
	return false
}

// DecodeManifest extracts the package and the launchable activity. Every
// activity is scanned and the last one with a MAIN/LAUNCHER filter wins.
func DecodeManifest(r io.Reader) (ManifestInfo, error) {
	var doc manifestDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return ManifestInfo{}, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}
	info := ManifestInfo{Package: doc.Package}
	if len(doc.Applications) > 0 {
		for _, c := range doc.Applications[0].Children {
			if c.XMLName.Local != elementActivity && c.XMLName.Local != elementAlias {
				continue
			}
			name := androidName(c.Attrs)
			if name == "" || !c.isLauncher() {
				continue
			}
			// TODO: confirm last-match with app owners; Android itself shows every launcher entry.
			info.Activity = name
		}
	}
	if info.Package == "" || info.Activity == "" {
		return info, fmt.Errorf("%w (package=%q activity=%q)", ErrManifestIncomplete, info.Package, info.Activity)
	}
	return info, nil
}

func ParseManifest(path string) (ManifestInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ManifestInfo{}, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}
	defer func() { _ = f.Close() }()
	return DecodeManifest(f)
}

// ReadManifest parses env.ManifestPath.
func ReadManifest(env Env) (ManifestInfo, error) {
	_, span := startSpan(env, "launch.ReadManifest", attribute.String("manifest", env.ManifestPath))
	defer span.End()
	info, err := ParseManifest(env.ManifestPath)
	if err != nil {
		recordSpanError(span, err)
		return info, err
	}
	span.SetAttributes(
		attribute.String("package", info.Package),
		attribute.String("activity", info.Activity),
	)
	logEvent(env, "manifest parsed", "manifest", env.ManifestPath, "package", info.Package, "activity", info.Activity)
	return info, nil
}
