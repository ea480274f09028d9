package binding

import (
	"context"
	"reflect"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/session"
)

// invoker returns the implementation of one mapper function.
func (f *Factory) invoker(sig *MethodSignature) func([]reflect.Value) []reflect.Value {
	return func(args []reflect.Value) []reflect.Value {
		out, err := f.call(sig, args)
		return sig.results(out, err)
	}
}

func (f *Factory) call(sig *MethodSignature, args []reflect.Value) (reflect.Value, error) {
	ctx := sig.context(args)
	param := sig.param(args)

	switch sig.Returns {
	case ReturnVoid, ReturnAffected, ReturnBool:
		n, err := f.update(sig, ctx, param)
		if err != nil {
			return reflect.Value{}, err
		}
		switch sig.Returns {
		case ReturnAffected:
			return reflect.ValueOf(n).Convert(sig.Result), nil
		case ReturnBool:
			return reflect.ValueOf(n > 0), nil
		}
		return reflect.Value{}, nil

	case ReturnOne:
		v, err := f.sess.SelectOne(ctx, sig.StatementID, param)
		if err != nil {
			return reflect.Value{}, err
		}
		return convert(sig, v, sig.Result)

	case ReturnMany:
		list, err := f.sess.SelectList(ctx, sig.StatementID, param, sig.bounds(args)...)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeSlice(sig.Result, 0, len(list))
		for _, v := range list {
			cv, err := convert(sig, v, sig.elemType)
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, cv)
		}
		return out, nil

	case ReturnMap:
		m, err := f.sess.SelectMap(ctx, sig.StatementID, param, sig.MapKey, sig.bounds(args)...)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeMapWithSize(sig.Result, len(m))
		for k, v := range m {
			ck, err := convert(sig, k, sig.keyType)
			if err != nil {
				return reflect.Value{}, err
			}
			cv, err := convert(sig, v, sig.elemType)
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(ck, cv)
		}
		return out, nil

	case ReturnCursor:
		seq, err := f.sess.SelectCursor(ctx, sig.StatementID, param, sig.bounds(args)...)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.MakeFunc(sig.Result, func(in []reflect.Value) []reflect.Value {
			yield := in[0]
			for v, err := range seq {
				item := reflect.Zero(sig.elemType)
				if err == nil {
					item, err = convert(sig, v, sig.elemType)
					if err != nil {
						item = reflect.Zero(sig.elemType)
					}
				}
				if !yield.Call([]reflect.Value{item, errorValue(err)})[0].Bool() || err != nil {
					break
				}
			}
			return nil
		}), nil
	}
	return reflect.Value{}, core.Errorf(core.ErrConfiguration, "unsupported return shape %s", sig.Returns).WithStatement(sig.StatementID)
}

func (f *Factory) update(sig *MethodSignature, ctx context.Context, param any) (int64, error) {
	switch sig.Kind {
	case core.KindInsert:
		return f.sess.Insert(ctx, sig.StatementID, param)
	case core.KindDelete:
		return f.sess.Delete(ctx, sig.StatementID, param)
	}
	return f.sess.Update(ctx, sig.StatementID, param)
}

// results packs a call outcome into the declared result values.
func (sig *MethodSignature) results(out reflect.Value, err error) []reflect.Value {
	if sig.funcType.NumOut() == 1 {
		return []reflect.Value{errorValue(err)}
	}
	if err != nil || !out.IsValid() {
		out = reflect.Zero(sig.Result)
	}
	return []reflect.Value{out, errorValue(err)}
}

func convert(sig *MethodSignature, v any, target reflect.Type) (reflect.Value, error) {
	out, err := session.Convert(reflect.ValueOf(v), target)
	if err != nil {
		return reflect.Value{}, core.Wrap(core.ErrMapping, sig.StatementID, err).WithResource(sig.Field)
	}
	return out, nil
}

func errorValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errorType)
	}
	return reflect.ValueOf(&err).Elem()
}
