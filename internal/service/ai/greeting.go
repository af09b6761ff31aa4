package ai

// greetingInstruction is appended to the character prompt when the persona
// picks up the phone. It asks for one short, varied Sorani greeting.
const greetingInstruction = "\n\nزۆر گرنگ: ئێستا کەسێک پەیوەندیت پێوە دەگرێت. تۆ دەبێت سەرەتا قسە بکەیت وەک کاتێک کەسێک تەلەفۆنت بۆ دێت. هەر جارێک بە شێوەیەکی جیاواز سڵاو بکە یان بپرسە کێیە. بۆ نموونە:\n- ئەلۆ؟\n- ئەلۆ کێیە؟\n- بەڵێ فەرموو؟\n- ئەلۆ تۆ کێیت؟\n- هەڵۆ؟\n- ئەلۆ فەرموو؟\n- بەڵێ؟\n\nتەنها یەک ڕستەی کورت بڵێ بە شێوەی سروشتی وەک کاتێک کەسێک تەلەفۆنت بۆ دێت."

// incomingCallPlaceholder is the single user turn that opens a call.
const incomingCallPlaceholder = "[پەیوەندی تەلەفۆن دەگرێت]"

const greetingMaxTokens = 100
