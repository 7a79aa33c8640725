// Package security derives a posture report from an engine configuration.
package security
