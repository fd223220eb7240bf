package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TaxBreakdownPolicy decides what happens when the PaymentTax rows of a
// payment cannot be written.
type TaxBreakdownPolicy string

const (
	// TaxBreakdownStrict fails the whole payment.
	TaxBreakdownStrict TaxBreakdownPolicy = "strict"
	// TaxBreakdownReconcile keeps the payment and flags the missing
	// breakdown for later reconciliation.
	TaxBreakdownReconcile TaxBreakdownPolicy = "reconcile"
)

type PaymentPolicy struct {
	TaxBreakdown       TaxBreakdownPolicy `mapstructure:"taxBreakdown"`
	LockTTL            time.Duration      `mapstructure:"lockTTL"`
	MaxReferenceLength int                `mapstructure:"maxReferenceLength"`
	MaxNotesLength     int                `mapstructure:"maxNotesLength"`
}

func DefaultPaymentPolicy() PaymentPolicy {
	return PaymentPolicy{
		TaxBreakdown:       TaxBreakdownStrict,
		LockTTL:            10 * time.Second,
		MaxReferenceLength: 100,
		MaxNotesLength:     1000,
	}
}

type PaymentPolicyHolder struct {
	current atomic.Value // holds PaymentPolicy
	log     *zap.Logger
}

// NewStaticPaymentPolicyHolder returns a holder that never reloads.
func NewStaticPaymentPolicyHolder(policy PaymentPolicy) *PaymentPolicyHolder {
	holder := &PaymentPolicyHolder{log: zap.NewNop()}
	holder.current.Store(policy)
	return holder
}

func NewPaymentPolicyHolder(cfg Config, log *zap.Logger) (*PaymentPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	v.SetConfigName("payment_policy")
	v.SetConfigType("yml")
	if cfg.PolicyConfigPath != "" {
		v.AddConfigPath(cfg.PolicyConfigPath)
	}
	v.AddConfigPath("/etc/studioledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STUDIOLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentPolicy()
	v.SetDefault("payment.taxBreakdown", string(defaults.TaxBreakdown))
	v.SetDefault("payment.lockTTL", defaults.LockTTL.String())
	v.SetDefault("payment.maxReferenceLength", defaults.MaxReferenceLength)
	v.SetDefault("payment.maxNotesLength", defaults.MaxNotesLength)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodePaymentPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PaymentPolicyHolder{log: log.Named("config.payment_policy")}
	holder.current.Store(policy)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			holder.reload(v, e.Name)
		})
	}

	return holder, nil
}

func (h *PaymentPolicyHolder) Get() PaymentPolicy {
	return h.current.Load().(PaymentPolicy)
}

func (h *PaymentPolicyHolder) reload(v *viper.Viper, source string) {
	updated, err := decodePaymentPolicy(v)
	if err != nil {
		h.log.Warn("invalid payment policy ignored", zap.String("source", source), zap.Error(err))
		return
	}
	h.current.Store(updated)
	h.log.Info("payment policy reloaded",
		zap.String("source", source),
		zap.String("tax_breakdown", string(updated.TaxBreakdown)),
	)
}

func decodePaymentPolicy(v *viper.Viper) (PaymentPolicy, error) {
	var policy PaymentPolicy
	if err := v.UnmarshalKey("payment", &policy); err != nil {
		return PaymentPolicy{}, err
	}
	policy.TaxBreakdown = TaxBreakdownPolicy(strings.ToLower(strings.TrimSpace(string(policy.TaxBreakdown))))
	if err := validatePaymentPolicy(policy); err != nil {
		return PaymentPolicy{}, err
	}
	return policy, nil
}

func validatePaymentPolicy(policy PaymentPolicy) error {
	switch policy.TaxBreakdown {
	case TaxBreakdownStrict, TaxBreakdownReconcile:
	default:
		return errors.New("payment.taxBreakdown must be strict or reconcile")
	}
	if policy.LockTTL <= 0 {
		return errors.New("payment.lockTTL must be positive")
	}
	if policy.MaxReferenceLength <= 0 || policy.MaxNotesLength <= 0 {
		return errors.New("payment length limits must be positive")
	}
	return nil
}
