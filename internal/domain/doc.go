// Package domain holds the curriculum entities (syllabi, modules, lessons,
// lesson content), the difficulty scale and the validation errors shared
// across layers.
package domain
