// Package publish delivers the results of a continuous-review run to one or
// more destinations: a local cr_summary.json, a GitHub repository through
// the contents API, an FTP server, or a NATS subject.
//
// Publishing is best effort. [Multi] runs every configured publisher and
// joins their errors; callers log the result and never let it change the
// run status.
package publish
