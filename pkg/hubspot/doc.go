// Package hubspot implements the CRM sync engine for HubSpot. Contacts are
// matched by email, companies by domain and then name, and notes by the
// ExternalRef marker line under the same parent record.
package hubspot
