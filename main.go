// =============================================================================
// CAPCEE Ingestion - Main Entry Point
// =============================================================================
//
// USAGE:
//   capcee-ingest serve           - Upload API and processing workers
//   capcee-ingest process <id>    - Process one PENDING file in the foreground
//   capcee-ingest mappings sync   - Load department mapping files into the database
//   capcee-ingest version         - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra) and wiring
//   - internal/      : pipeline, validation, persistence, queue, API
//   - pkg/utils/     : content stores (local directory, MinIO)
//   - configs/       : main configuration and department mapping files
//
// =============================================================================

package main

import (
	"github.com/callrodry/capcee-proyecto/cmd"
)

func main() {
	cmd.Execute()
}
