// Command forumcrawler polls a XenForo "what's new" listing, visits each
// thread in order of latest activity, and emits posts younger than the
// freshness window exactly once per process lifetime.
//
// Pipeline:
//   - Fetch: Colly with robots.txt, a per-host token bucket and capped
//     exponential retry. Invalid start URLs stop the loop.
//   - Parse: goquery selectors for thread rows and posts; quoted replies and
//     the lightbox configuration blob are stripped from message text.
//   - Dedup: message ids are md5(threadID + "_" + timestamp) and kept in an
//     in-memory ledger, optionally pruned after ledger.retention.
//   - Sinks: any of log, memory, pubsub, postgres and sqlite, fanned out in
//     order. A failed emission is logged and not retried.
//   - Archive: raw pages optionally go to local disk, memory or GCS.
//
// Operations:
//   - Configure via CRAWLER_* env vars, a .env file, or -config config.yaml.
//   - /healthz, /readyz, /metrics and /v1/state are served on server.port;
//     set it to 0 to disable the HTTP server.
//   - SIGINT/SIGTERM finish the in-flight thread's emissions, then exit.
package main
