// Package stages assembles the full kernel.Registry from every block
// package, mirroring original_source/n3_runtime/adapters/registry.py's
// canonical-name-plus-alias map.
package stages

import (
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/stages/b1perception"
	"github.com/noema/noema/internal/stages/b2worldmodel"
	"github.com/noema/noema/internal/stages/b3memory"
	"github.com/noema/noema/internal/stages/b4conceptgraph"
	"github.com/noema/noema/internal/stages/b5planning"
	"github.com/noema/noema/internal/stages/b6dialog"
	"github.com/noema/noema/internal/stages/b7execution"
	"github.com/noema/noema/internal/stages/b8persistence"
	"github.com/noema/noema/internal/stages/b9observability"
	"github.com/noema/noema/internal/stages/b10adaptation"
	"github.com/noema/noema/internal/stages/b11runtime"
	"github.com/noema/noema/internal/stages/b12orchestration"
	"github.com/noema/noema/internal/stages/b13drivers"
)

// NewDefaultRegistry builds the registry covering every stage in
// kernel.DefaultOrder() and kernel.ShortOrder().
func NewDefaultRegistry() kernel.Registry {
	r := kernel.NewRegistry()

	r.Register(b1perception.Collector, "b1f1_collector")
	r.Register(b1perception.Normalizer, "b1f2_normalizer")
	r.Register(b1perception.ScriptTagger, "b1f3_script_tagger")
	r.Register(b1perception.Tokenizer, "b1f4_tokenizer")
	r.Register(b1perception.SentenceSplitter, "b1f5_sentence_splitter")
	r.Register(b1perception.SpanExtractor, "b1f6_span_extractor")
	r.Register(b1perception.SignalExtractor, "b1f7_signal_extractor")
	r.Register(b1perception.NoveltyScorer, "b1f8_novelty_scorer")
	r.Register(b1perception.TypingTracer, "b1f9_typing_tracer")
	r.Register(b1perception.PackZ, "b1f10_packz")

	r.Register(b2worldmodel.ContextBuilder, "b2f1_context_builder")
	r.Register(b2worldmodel.Predictor, "b2f2_predictor")
	r.Register(b2worldmodel.ErrorScorer, "b2f3_error_scorer")
	r.Register(b2worldmodel.UncertaintyScorer, "b2f4_uncertainty_scorer")

	r.Register(b3memory.WALWriter, "b3f1_wal_writer")
	r.Register(b3memory.Indexer, "b3f2_indexer")
	r.Register(b3memory.Retriever, "b3f3_retriever")
	r.Register(b3memory.ContextCache, "b3f4_context_cache")

	r.Register(b4conceptgraph.PatternMiner, "b4f1_pattern_miner")
	r.Register(b4conceptgraph.NodeManager, "b4f2_node_manager")
	r.Register(b4conceptgraph.EdgeScorer, "b4f3_edge_scorer")
	r.Register(b4conceptgraph.RuleExtractor, "b4f4_rule_extractor")

	r.Register(b5planning.IntentRouter, "b5f1_intent_router")
	r.Register(b5planning.SlotCollector, "b5f2_slot_collector")
	r.Register(b5planning.PlanBuilder, "b5f3_plan_builder")

	r.Register(b6dialog.TurnRealizer, "b6f1_turn_realizer")
	r.Register(b6dialog.SurfaceNLG, "b6f2_surface_nlg")
	r.Register(b6dialog.SafetyFilter, "b6f3_safety_filter")

	r.Register(b7execution.SkillDispatcher, "b7f1_skill_dispatcher")
	r.Register(b7execution.ResultNormalizer, "b7f2_result_normalizer")
	r.Register(b7execution.ResultPresenter, "b7f3_result_presenter")

	r.Register(b8persistence.MemoryCommit, "b8f1_memory_commit")
	r.Register(b8persistence.WALApplyPlanner, "b8f2_wal_apply_planner")
	r.Register(b8persistence.ApplyOptimizer, "b8f3_apply_optimizer")

	r.Register(b9observability.TelemetryAggregator, "b9f1_telemetry_aggregator")
	r.Register(b9observability.TraceBuilder, "b9f2_trace_builder")
	r.Register(b9observability.SLOEvaluator, "b9f3_slo_evaluator")

	r.Register(b10adaptation.PolicyDeltaPlanner, "b10f1_policy_delta_planner")
	r.Register(b10adaptation.PolicyApplyPlanner, "b10f2_policy_apply_planner")
	r.Register(b10adaptation.PolicyApplyStager, "b10f3_policy_apply_stager")

	r.Register(b11runtime.ConfigActivator, "b11f1_config_activator")
	r.Register(b11runtime.Gatekeeper, "b11f2_runtime_gatekeeper", "b11f2_gatekeeper")
	r.Register(b11runtime.Scheduler, "b11f3_scheduler")
	r.Register(b11runtime.InitiativeScheduler, "b11f4_initiative_scheduler")

	r.Register(b12orchestration.OrchestratorTick, "b12f1_orchestrator_tick")
	r.Register(b12orchestration.ActionEnveloper, "b12f2_action_enveloper")
	r.Register(b12orchestration.DriverJobBuilder, "b12f3_driver_job_builder")

	r.Register(b13drivers.ProtocolBuilder, "b13f1_protocol_builder")
	r.Register(b13drivers.ReplyNormalizer, "b13f2_reply_normalizer")
	r.Register(b13drivers.DriverRetryPlanner, "b13f3_driver_retry_planner")

	return r
}
