// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package naming parses the band's filename convention.
//
// A file is named <Title>_<Token>.<ext>, where Token is one of the
// transposition keys (Bb, Eb, Concert, BassClef, Chords, Lyrics):
//
//	Blue Bossa_Bb.pdf        -> {Title: "Blue Bossa", Key: Bb, Type: chart}
//	Take_The_A_Train_Eb.pdf  -> {Title: "Take_The_A_Train", Key: Eb, Type: chart}
//	Blue Bossa_Alto.pdf      -> {Title: "Blue Bossa", Key: Unknown, Type: chart}
//	Blue Bossa (demo).mp3    -> {Title: "Blue Bossa (demo).mp3", Key: Unknown, Type: audio}
//
// Parsing never fails: a name that does not follow the convention is still
// returned with the raw filename as its title and the Unknown key, so a
// misnamed file is shown to everyone instead of disappearing.
package naming

import (
	"path"
	"strings"

	"github.com/tomtom215/setlist/internal/models"
)

// ParsedName is the result of Parse.
type ParsedName struct {
	Title            string
	TranspositionKey models.TranspositionKey
	ContentType      models.ContentType
	// Parsed is false when the name has no usable <Title>_<Token> shape.
	Parsed bool
	// Extension is the lower-cased extension including the dot.
	Extension string
}

var chartExtensions = map[string]struct{}{
	".pdf": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".musicxml": {}, ".mxl": {}, ".xml": {}, ".txt": {}, ".doc": {}, ".docx": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".m4a": {}, ".wav": {}, ".aac": {}, ".ogg": {},
	".flac": {}, ".aif": {}, ".aiff": {},
}

// Parse splits filename into title, transposition key and content type.
func Parse(filename string) ParsedName {
	ext := path.Ext(filename)
	result := ParsedName{
		Title:            filename,
		TranspositionKey: models.KeyUnknown,
		ContentType:      ClassifyExtension(ext),
		Extension:        strings.ToLower(ext),
	}

	base := strings.TrimSuffix(filename, ext)
	sep := strings.LastIndex(base, "_")
	if sep < 0 {
		return result
	}

	title, token := base[:sep], base[sep+1:]
	if strings.TrimSpace(title) == "" || strings.TrimSpace(token) == "" {
		return result
	}

	result.Title = title
	result.Parsed = true
	if key, ok := models.LookupTranspositionKey(strings.TrimSpace(token)); ok {
		result.TranspositionKey = key
	}
	return result
}

// ClassifyExtension maps an extension (with or without the leading dot, any
// case) to a content type.
func ClassifyExtension(ext string) models.ContentType {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if _, ok := chartExtensions[ext]; ok {
		return models.ContentChart
	}
	if _, ok := audioExtensions[ext]; ok {
		return models.ContentAudio
	}
	return models.ContentUnclassified
}
