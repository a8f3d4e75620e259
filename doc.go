// Package csvagent answers natural-language questions about an uploaded
// tabular file by translating them into SQL with a language model.
//
// An upload goes through three stages:
//
//   - the Loader persists the file under the upload directory and parses it
//     into a model.Table (CSV, TSV, XLSX, XLS and Parquet, optionally
//     compressed with gzip, bzip2, xz or zstandard)
//   - the Materializer writes the table into a SQLite store as the single
//     table "data", replacing whatever the store held before
//   - the Engine builds a prompt from the store schema, asks an llm.Generator
//     for SQL, checks it with ValidateSQL and runs it on the read-only store
//
// # Basic Usage
//
//	gen, err := llm.NewOllama(llm.DefaultOllamaURL, llm.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session := csvagent.NewSession(csvagent.NewEngine(gen))
//	defer session.Close()
//
//	if _, err := session.Upload(ctx, data, "sales.csv"); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := session.StartChat(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := session.Ask(ctx, "What is the total revenue per region?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.SQL, result.Rows)
//
// # Editing
//
// Columns can be renamed and described before chatting. Descriptions are
// shown to the model next to the schema. Export writes the edited table back
// to a file, "updated_file.csv" by default.
//
// # Safety
//
// Generated SQL is never trusted. ValidateSQL accepts a single SELECT (or set
// operation) that reads only "data" and its own common table expressions, and
// the store connection itself refuses writes.
//
// # Errors
//
// Every error matches one of the Err* kinds with errors.Is and, when there
// is one, its cause. SQLOf returns the SQL involved in a failed question.
package csvagent
