package domain

import (
	"fmt"

	"github.com/paulmach/orb"
)

// DefaultGeometryKinds are the PgOSM Flex geometry table suffixes.
var DefaultGeometryKinds = []string{"point", "line", "polygon"}

// Category - one consolidated OSM category (infrastructure, place, ...).
type Category struct {
	Name        string   `yaml:"name"`
	HasSubtypes bool     `yaml:"has_subtypes"`
	Kinds       []string `yaml:"kinds,omitempty"`
}

// GeometryKinds returns the configured table suffixes or the PgOSM defaults.
func (c Category) GeometryKinds() []string {
	if len(c.Kinds) > 0 {
		return c.Kinds
	}
	return DefaultGeometryKinds
}

// Feature - an OSM entity read from a consolidated category view.
type Feature struct {
	OSMID      int64
	Category   string
	OSMType    string
	OSMSubtype string
	Geometry   orb.Geometry
	Tags       map[string]string
}

// FeatureFilter selects the features an ETL run aggregates against.
type FeatureFilter struct {
	Category    string
	HasSubtypes bool
	OSMType     string
	OSMSubtypes []string
	BBox        *BoundingBox
}

// BoundingBox - x is longitude, y is latitude (EPSG:4326).
type BoundingBox struct {
	XMin float64 `json:"xmin" validate:"gte=-180,lte=180"`
	XMax float64 `json:"xmax" validate:"gte=-180,lte=180,gtefield=XMin"`
	YMin float64 `json:"ymin" validate:"gte=-90,lte=90"`
	YMax float64 `json:"ymax" validate:"gte=-90,lte=90,gtefield=YMin"`
}

// Bound converts the box to an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.XMin, b.YMin}, Max: orb.Point{b.XMax, b.YMax}}
}

// Validate checks coordinate ranges and ordering.
func (b BoundingBox) Validate() error {
	if b.XMin < -180 || b.XMin > 180 || b.XMax < -180 || b.XMax > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	if b.YMin < -90 || b.YMin > 90 || b.YMax < -90 || b.YMax > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if b.XMin > b.XMax || b.YMin > b.YMax {
		return fmt.Errorf("min must not exceed max")
	}
	return nil
}

// WKT renders the box as a closed polygon.
func (b BoundingBox) WKT() string {
	return fmt.Sprintf("POLYGON((%[1]g %[3]g, %[2]g %[3]g, %[2]g %[4]g, %[1]g %[4]g, %[1]g %[3]g))",
		b.XMin, b.XMax, b.YMin, b.YMax)
}

var stateBBoxes = map[string]BoundingBox{
	"washington": {
		XMin: -124.73364306703067,
		YMin: 45.54383071539715,
		XMax: -116.9161607504075,
		YMax: 49.00240502974029,
	},
}

// StateBBox returns the bounding box of a named US state.
func StateBBox(name string) (BoundingBox, bool) {
	b, ok := stateBBoxes[name]
	return b, ok
}

// RefreshResult - outcome of rebuilding one consolidated view.
type RefreshResult struct {
	Category     string           `json:"category"`
	Rows         int64            `json:"rows"`
	SourceCounts map[string]int64 `json:"source_counts"`
}
