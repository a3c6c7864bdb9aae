package main

import (
	"flag"
	"log"
	"os"

	"statecraft.ai/internal/protocol"
)

func main() {
	var (
		configDir    = flag.String("configs", "./configs", "config directory")
		scenarioPath = flag.String("scenario", "./configs/scenarios/sample.yaml", "scenario file (ignored when resuming from a snapshot)")
		scriptPath   = flag.String("script", "", "per-turn collaborator inputs and treaty drafts (optional)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		turns        = flag.Int("turns", 10, "number of turns to run")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite index (turns, ledger, treaties, snapshots)")

		snapPath      = flag.String("snapshot", "", "path to snapshot to resume from (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", false, "resume from the latest snapshot in the campaign dir (when -snapshot is empty)")
		snapshotEvery = flag.Int("snapshot_every", 0, "also write a snapshot every N turns (0: only at the end)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[campaign] ", log.LstdFlags|log.Lmicroseconds)

	res, err := run(runConfig{
		ConfigDir:     *configDir,
		ScenarioPath:  *scenarioPath,
		ScriptPath:    *scriptPath,
		DataDir:       *dataDir,
		TuningPath:    *tuningPath,
		Turns:         *turns,
		DisableDB:     *disableDB,
		SnapshotPath:  *snapPath,
		LoadLatest:    *loadLatest,
		SnapshotEvery: *snapshotEvery,
	}, logger)
	if err != nil {
		logger.Fatalf("%s: %v", protocol.Code(err), err)
	}
	logger.Printf("done: turns %d..%d digest=%s treaties=%d applied=%d snapshot=%s",
		res.StartTurn, res.EndTurn, res.Digest, res.Treaties, res.Applied, res.SnapshotPath)
}
