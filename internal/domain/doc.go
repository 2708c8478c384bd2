// Package domain holds the value objects shared across the Relay CRM
// service: databases (tenants), subscribers, tags, campaigns, and the
// audience targeting types.
//
// Everything here is plain data. No package under internal/ is imported,
// nothing carries a *sql.DB or an http.Request, and the only methods are
// pure predicates on the type (IsDue, HasTag). Handlers, services, and
// repositories all speak in these types; serialization tags are the one
// piece of metadata they carry.
package domain
