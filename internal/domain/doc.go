// Package domain holds the core entity types shared across services,
// repositories, and handlers. Types here carry no behavior beyond simple
// derivations and never import storage or transport packages.
package domain
