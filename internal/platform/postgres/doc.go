// Package postgres provides PostgreSQL implementations of the task, lesson,
// syllabus and progress stores, plus the embedded schema migrations.
// Queries go through store.DBTX so every store works on a *sql.DB or inside
// a transaction.
package postgres
