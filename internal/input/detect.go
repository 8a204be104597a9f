// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/types"
)

type Format int

const (
	FormatNative Format = iota
	FormatDependencyCheck
)

func (f Format) String() string {
	switch f {
	case FormatNative:
		return "native"
	case FormatDependencyCheck:
		return "dependency-check"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// nativeDocument is the evidence-only input format.
type nativeDocument struct {
	Dependencies []nativeDependency `json:"dependencies"`
}

type nativeDependency struct {
	FilePath    string         `json:"file_path"`
	MD5         string         `json:"md5,omitempty"`
	SHA1        string         `json:"sha1,omitempty"`
	SHA256      string         `json:"sha256,omitempty"`
	Description string         `json:"description,omitempty"`
	Evidence    nativeEvidence `json:"evidence"`
}

type nativeEvidence struct {
	Vendor  []nativeItem `json:"vendor"`
	Product []nativeItem `json:"product"`
	Version []nativeItem `json:"version"`
}

type nativeItem struct {
	Source     string `json:"source"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	Confidence string `json:"confidence,omitempty"`
}

// Detect reports the format of an input document.
func Detect(data []byte) (Format, error) {
	var head struct {
		ReportSchema *string         `json:"reportSchema"`
		Dependencies json.RawMessage `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("invalid JSON input: %w", err)
	}
	if head.Dependencies == nil {
		return 0, errors.New("unrecognized input format: no dependencies")
	}
	if head.ReportSchema != nil {
		return FormatDependencyCheck, nil
	}
	return FormatNative, nil
}

// Parse decodes the dependencies of a native or dependency-check document.
func Parse(data []byte) ([]*dependency.Dependency, error) {
	format, err := Detect(data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatDependencyCheck:
		var report types.Report
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("parsing dependency-check report: %w", err)
		}
		return fromReport(report)
	default:
		var doc nativeDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing input: %w", err)
		}
		return fromNative(doc)
	}
}

func fromNative(doc nativeDocument) ([]*dependency.Dependency, error) {
	deps := make([]*dependency.Dependency, 0, len(doc.Dependencies))
	for i, nd := range doc.Dependencies {
		if nd.FilePath == "" {
			return nil, fmt.Errorf("dependency %d: file_path is required", i)
		}
		d := dependency.New(nd.FilePath)
		d.MD5, d.SHA1, d.SHA256 = nd.MD5, nd.SHA1, nd.SHA256
		d.Description = nd.Description
		axes := []struct {
			items []nativeItem
			dst   *dependency.EvidenceCollection
		}{
			{nd.Evidence.Vendor, &d.Vendor},
			{nd.Evidence.Product, &d.Product},
			{nd.Evidence.Version, &d.Version},
		}
		for _, axis := range axes {
			for _, item := range axis.items {
				e, err := evidence(item.Source, item.Name, item.Value, item.Confidence)
				if err != nil {
					return nil, fmt.Errorf("dependency %s: %w", nd.FilePath, err)
				}
				axis.dst.AddEvidence(e)
			}
		}
		deps = append(deps, d)
	}
	return deps, nil
}

func fromReport(report types.Report) ([]*dependency.Dependency, error) {
	deps := make([]*dependency.Dependency, 0, len(report.Dependencies))
	for _, rd := range report.Dependencies {
		d, err := fromReportDependency(rd)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

func fromReportDependency(rd types.ReportDependency) (*dependency.Dependency, error) {
	path := rd.FilePath
	if path == "" {
		path = rd.FileName
	}
	d := dependency.New(path)
	if rd.FileName != "" {
		d.FileName = rd.FileName
	}
	d.MD5, d.SHA1, d.SHA256 = rd.Md5, rd.Sha1, rd.Sha256
	d.Description, d.License = rd.Description, rd.License

	axes := []struct {
		items []types.ReportEvidence
		dst   *dependency.EvidenceCollection
	}{
		{rd.EvidenceCollected.VendorEvidence, &d.Vendor},
		{rd.EvidenceCollected.ProductEvidence, &d.Product},
		{rd.EvidenceCollected.VersionEvidence, &d.Version},
	}
	for _, axis := range axes {
		for _, re := range axis.items {
			e, err := evidence(re.Source, re.Name, re.Value, re.Confidence)
			if err != nil {
				return nil, fmt.Errorf("dependency %s: %w", path, err)
			}
			axis.dst.AddEvidence(e)
		}
	}

	for _, related := range rd.RelatedDependencies {
		r, err := fromReportDependency(related)
		if err != nil {
			return nil, err
		}
		d.RelatedDependencies = append(d.RelatedDependencies, r)
	}
	return d, nil
}

// evidence builds an evidence item. A missing confidence means MEDIUM.
func evidence(source, name, value, confidence string) (dependency.Evidence, error) {
	e := dependency.Evidence{Source: source, Name: name, Value: value, Confidence: dependency.Medium}
	if strings.TrimSpace(value) == "" {
		return e, fmt.Errorf("evidence %s/%s has no value", source, name)
	}
	if confidence != "" {
		c, err := dependency.ParseConfidence(confidence)
		if err != nil {
			return e, err
		}
		e.Confidence = c
	}
	return e, nil
}
