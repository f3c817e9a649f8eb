// Package port contains the HTTP entry points into the messaging service.
// Handlers translate JSON requests into app layer calls and map results and
// errors back.
package port
