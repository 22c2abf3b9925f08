// Package models - Class tables and output decoders for supported detectors.
package models

// ModelFamily is the family of models, which fixes the class table.
type ModelFamily string

const (
	// ModelFamilyCOCO is the 80 COCO classes + background.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the 80 COCO classes, no background.
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyVOC is the 20 classes + background.
	ModelFamilyVOC ModelFamily = "voc"
)
