// Package core contains the CRM sync domain: connections and their token
// lifecycle, local mirrors of remote calendar events and emails, the
// reconciliation engine, linking to CRM records, the sync audit log and
// statistics. Storage and provider adapters depend on this package; core
// never imports them.
package core
