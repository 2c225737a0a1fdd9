package main

import (
	"log"

	"github.com/weftwork/weft/core/controlplane/orchestratord"
	"github.com/weftwork/weft/core/infra/buildinfo"
	"github.com/weftwork/weft/core/infra/config"
)

func main() {
	log.Println("weft orchestrator starting...")
	buildinfo.Log("weft-orchestrator")
	cfg := config.Load()
	if err := orchestratord.Run(cfg); err != nil {
		log.Fatalf("orchestrator error: %v", err)
	}
}
