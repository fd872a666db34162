package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
)

// Transformer converts the decoded logs of one transaction on one contract
// into domain events. Validation failures are collected and returned, never
// raised: a single malformed log must not take down the transaction, and
// the calling stage decides whether collected errors escalate.
type Transformer interface {
	ContractType() string
	Transform(txHash string, timestamp time.Time, logs []common.DecodedLog) ([]common.DomainEvent, []common.ProcessingError)
}

// Registry maps contract types to transformer strategies. The table is
// fixed at construction and validated eagerly: an unknown type in the
// contract configuration is a startup error, not a first-use surprise.
// Strategies are instantiated up front so the table is read-only afterwards
// and safe to share across concurrent block workers.
type Registry struct {
	strategies map[string]Transformer
	contracts  map[string]config.ContractConfig
	rules      []config.RuleConfig
	logger     zerolog.Logger
}

func NewRegistry(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		strategies: map[string]Transformer{
			TypeLBPair: NewLBPairTransformer(logger.With().Str("transformer", TypeLBPair).Logger()),
			TypeERC20:  NewTransferTransformer(logger.With().Str("transformer", TypeERC20).Logger()),
		},
		contracts: make(map[string]config.ContractConfig),
		rules:     cfg.Rules,
		logger:    logger,
	}

	for _, contract := range cfg.Contracts {
		if !isActive(contract.Active) {
			continue
		}
		if _, ok := r.strategies[contract.Type]; !ok {
			return nil, fmt.Errorf("contract %s (%s): %w: %q",
				contract.Address, contract.Name, common.ErrUnknownContractType, contract.Type)
		}
		r.contracts[strings.ToLower(contract.Address)] = contract
	}
	return r, nil
}

// Resolve returns the strategy for a contract type.
func (r *Registry) Resolve(contractType string) (Transformer, error) {
	t, ok := r.strategies[contractType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownContractType, contractType)
	}
	return t, nil
}

// StrategyForContract resolves the strategy for a contract address, when the
// address belongs to an active configured contract.
func (r *Registry) StrategyForContract(address string) (Transformer, bool) {
	contract, ok := r.contracts[strings.ToLower(address)]
	if !ok {
		return nil, false
	}
	t, err := r.Resolve(contract.Type)
	if err != nil {
		// cannot happen for contracts validated at construction
		return nil, false
	}
	return t, true
}

// ActiveContracts returns the configured contract instances whose active
// flag is set or unspecified. Inactive entries stay in configuration but
// are excluded from every decode/transform pass.
func (r *Registry) ActiveContracts() []config.ContractConfig {
	contracts := make([]config.ContractConfig, 0, len(r.contracts))
	for _, contract := range r.contracts {
		contracts = append(contracts, contract)
	}
	return contracts
}

// ActiveRules filters configured rules by their active flag.
func (r *Registry) ActiveRules() []config.RuleConfig {
	rules := make([]config.RuleConfig, 0, len(r.rules))
	for _, rule := range r.rules {
		if isActive(rule.Active) {
			rules = append(rules, rule)
		}
	}
	return rules
}

// EventActive reports whether an event is enabled for a contract type. An
// event is disabled only by an explicitly inactive rule.
func (r *Registry) EventActive(contractType, event string) bool {
	for _, rule := range r.rules {
		if rule.ContractType == contractType && rule.Event == event {
			return isActive(rule.Active)
		}
	}
	return true
}

func isActive(flag *bool) bool {
	return flag == nil || *flag
}
