package subscription

import "go.uber.org/fx"

// HookGroup is the fx value group collecting ChangeHook implementations.
const HookGroup = `group:"subscription_hooks"`

// Module exposes the subscription service and the expiry sweeper via Fx.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewService, fx.ParamTags(``, ``, ``, ``, HookGroup)),
		NewSweeper,
	),
	fx.Invoke(registerSweeper),
)

// AsHook annotates a constructor so its result joins the subscription hook group.
func AsHook(f any) any {
	return fx.Annotate(f, fx.As(new(ChangeHook)), fx.ResultTags(HookGroup))
}
