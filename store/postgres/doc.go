// Package postgres implements store.Store and queue.Queue using pgx/v5 with
// raw SQL and embedded migrations.
//
// The queue variant keeps both sets in one table with a state column and
// claims with UPDATE … WHERE job_id = (SELECT … FOR UPDATE SKIP LOCKED), so
// concurrent workers skip rows another transaction is claiming.
package postgres
