// Package core provides the listing ingestion pipeline.
//
// Three entry paths feed the same pipeline: a manual create request, a bulk
// CSV import and background scrape jobs. Every path converges on one shape:
//
//  1. [AdminGate] authorizes the caller before any other work happens.
//  2. Input is normalized into [RawListing] candidates.
//  3. [ListingValidator] rejects malformed candidates (first failing rule wins)
//     and decodes attached images through [ImageCodec].
//  4. [ReferenceResolver] maps city, source and owner to stable ids using
//     find-or-create with a re-read on unique conflicts.
//  5. [ListingWriter] stores the listing and its images in one transaction.
//  6. A refresh signal is published through the configured [Notifier].
//
// # Storage
//
// Persistence goes through the [CityRepository], [SourceRepository],
// [UserRepository] and [ListingRepository] ports, grouped in [Repositories]
// and bound to a transaction by [Store.InTx]. The postgres package provides
// the production implementation and memstore an in-memory one.
//
// # Error Handling
//
// Operations return typed errors classified by [KindOf]: validation,
// forbidden, not found and persistence. [MapError] turns any of them into a
// caller-facing message with a support code:
//
//   - AUTH001: caller is not an administrator
//   - VAL001-VAL006: field validation failures
//   - CSV001-CSV003: document level CSV failures
//   - IMG001-IMG002: image payload failures
//   - NF001: missing listing or image
//   - DB001-DB003: persistence failures
//   - ING001: no ingest slot available
//   - ING002: scraping is disabled
package core
